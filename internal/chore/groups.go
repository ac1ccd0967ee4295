package chore

import (
	"context"
	"errors"
	"strings"

	"github.com/dukerupert/coolive/internal/invite"
	"github.com/dukerupert/coolive/internal/model"
	"github.com/dukerupert/coolive/internal/store"
)

const maxGroupNameLen = 100

// Invite is what a member shares to bring someone into the group.
type Invite struct {
	GroupID string `json:"group_id"`
	Code    string `json:"code"`
	Link    string `json:"link"`
}

// CreateGroup makes a new group with userID as its first member and caches it
// on the caller's session.
func (s *Service) CreateGroup(ctx context.Context, userID, sessionID int64, name string) (*model.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name is required")
	}
	if len(name) > maxGroupNameLen {
		return nil, invalid("name is too long")
	}

	g, err := s.groups.Create(ctx, name, userID)
	if errors.Is(err, store.ErrAlreadyMember) {
		return nil, ErrAlreadyInGroup
	}
	if err != nil {
		return nil, err
	}

	s.cacheGroup(ctx, sessionID, g.ID)
	s.logger.Info("group created", "group_id", g.ID, "public_id", g.PublicID, "created_by", userID)
	return g, nil
}

// JoinGroup adds userID to the group named by ref, which may be a deep link,
// a public id or a short invite code.
func (s *Service) JoinGroup(ctx context.Context, userID, sessionID int64, ref string) (*model.Group, error) {
	g, err := s.lookupGroup(ctx, ref)
	if err != nil {
		return nil, err
	}

	err = s.groups.AddMember(ctx, g.ID, userID)
	if errors.Is(err, store.ErrAlreadyMember) {
		return nil, ErrAlreadyInGroup
	}
	if err != nil {
		return nil, err
	}

	s.cacheGroup(ctx, sessionID, g.ID)
	s.logger.Info("group joined", "group_id", g.ID, "user_id", userID)
	return g, nil
}

func (s *Service) lookupGroup(ctx context.Context, ref string) (*model.Group, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, invalid("group reference is required")
	}

	var g *model.Group
	var err error
	switch {
	case strings.Contains(ref, "://"):
		publicID, perr := invite.ParseLink(ref)
		if perr != nil {
			return nil, invalid("invalid invite link")
		}
		g, err = s.groups.GetByPublicID(ctx, publicID)
	case invite.IsPublicID(ref):
		g, err = s.groups.GetByPublicID(ctx, strings.ToLower(ref))
	default:
		g, err = s.groups.GetByCode(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGroupNotFound
	}
	return g, nil
}

// LeaveGroup removes userID from groupID. Sessions stop caching the group.
func (s *Service) LeaveGroup(ctx context.Context, groupID, userID int64) error {
	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}
	s.logger.Info("group left", "group_id", groupID, "user_id", userID)
	return nil
}

func (s *Service) Group(ctx context.Context, groupID int64) (*model.Group, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGroupNotFound
	}
	return g, nil
}

func (s *Service) Members(ctx context.Context, groupID int64) ([]model.GroupMember, error) {
	members, err := s.groups.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []model.GroupMember{}
	}
	return members, nil
}

// InviteFor returns the shareable link and code of the group.
func (s *Service) InviteFor(ctx context.Context, groupID int64) (*Invite, error) {
	g, err := s.Group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &Invite{GroupID: g.PublicID, Code: g.InviteCode, Link: invite.Link(g.PublicID)}, nil
}

func (s *Service) cacheGroup(ctx context.Context, sessionID, groupID int64) {
	if sessionID == 0 {
		return
	}
	err := s.sessions.SetGroup(ctx, sessionID, &groupID)
	switch {
	case errors.Is(err, store.ErrNotGroupMember):
		s.logger.Debug("group left before caching", "session_id", sessionID, "group_id", groupID)
	case err != nil:
		s.logger.Warn("cache session group", "session_id", sessionID, "error", err)
	}
}
