package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/dukerupert/coolive/internal/auth"
	"github.com/dukerupert/coolive/internal/chore"
	"github.com/dukerupert/coolive/internal/email"
	"github.com/dukerupert/coolive/internal/model"
	"github.com/dukerupert/coolive/internal/websocket"
)

type inviteMailer interface {
	SendInvite(ctx context.Context, inv email.Invite) error
}

type GroupHandler struct {
	svc    *chore.Service
	hub    *websocket.Hub
	mailer inviteMailer
	logger *slog.Logger
}

// NewGroupHandler builds the group handler. mailer may be nil when email is
// not configured.
func NewGroupHandler(svc *chore.Service, hub *websocket.Hub, mailer inviteMailer, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{svc: svc, hub: hub, mailer: mailer, logger: logger}
}

func (h *GroupHandler) broadcast(groupID int64, msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(groupID, msg)
	}
}

type groupResponse struct {
	Group   *model.Group        `json:"group"`
	Members []model.GroupMember `json:"members"`
	Invite  *chore.Invite       `json:"invite"`
}

// Current handles GET /api/group
func (h *GroupHandler) Current(w http.ResponseWriter, r *http.Request) {
	groupID := auth.GroupID(r.Context())
	g, err := h.svc.Group(r.Context(), groupID)
	if err != nil {
		writeError(w, h.logger, err, "failed to get group")
		return
	}
	members, err := h.svc.Members(r.Context(), groupID)
	if err != nil {
		writeError(w, h.logger, err, "failed to list members")
		return
	}
	inv, err := h.svc.InviteFor(r.Context(), groupID)
	if err != nil {
		writeError(w, h.logger, err, "failed to build invite")
		return
	}
	writeJSON(w, http.StatusOK, groupResponse{Group: g, Members: members, Invite: inv})
}

// Create handles POST /api/groups
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	ac, _ := auth.FromContext(r.Context())
	g, err := h.svc.CreateGroup(r.Context(), ac.UserID, ac.SessionID, req.Name)
	if err != nil {
		writeError(w, h.logger, err, "failed to create group")
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// Join handles POST /api/groups/join. ref may be a deep link, a group id or
// an invite code.
func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ref string `json:"ref"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	ac, _ := auth.FromContext(r.Context())
	g, err := h.svc.JoinGroup(r.Context(), ac.UserID, ac.SessionID, req.Ref)
	if err != nil {
		writeError(w, h.logger, err, "failed to join group")
		return
	}

	h.broadcast(g.ID, websocket.NewMessage("member", "joined", ac.UserID, nil))
	writeJSON(w, http.StatusOK, g)
}

// Leave handles POST /api/group/leave
func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if err := h.svc.LeaveGroup(r.Context(), ac.GroupID, ac.UserID); err != nil {
		writeError(w, h.logger, err, "failed to leave group")
		return
	}

	if h.hub != nil {
		h.hub.Disconnect(ac.GroupID, ac.UserID)
	}
	h.broadcast(ac.GroupID, websocket.NewMessage("member", "left", ac.UserID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Members handles GET /api/group/members
func (h *GroupHandler) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.Members(r.Context(), auth.GroupID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err, "failed to list members")
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// Invite handles GET /api/group/invite
func (h *GroupHandler) Invite(w http.ResponseWriter, r *http.Request) {
	inv, err := h.svc.InviteFor(r.Context(), auth.GroupID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err, "failed to build invite")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// EmailInvite handles POST /api/group/invite/email
func (h *GroupHandler) EmailInvite(w http.ResponseWriter, r *http.Request) {
	if h.mailer == nil {
		writeMessage(w, http.StatusServiceUnavailable, "email invites are not enabled")
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	ac, _ := auth.FromContext(r.Context())
	g, err := h.svc.Group(r.Context(), ac.GroupID)
	if err != nil {
		writeError(w, h.logger, err, "failed to get group")
		return
	}
	inv, err := h.svc.InviteFor(r.Context(), ac.GroupID)
	if err != nil {
		writeError(w, h.logger, err, "failed to build invite")
		return
	}
	members, err := h.svc.Members(r.Context(), ac.GroupID)
	if err != nil {
		writeError(w, h.logger, err, "failed to list members")
		return
	}
	inviter := "Un company de pis"
	for _, m := range members {
		if m.UserID == ac.UserID {
			inviter = m.FullName
			break
		}
	}

	err = h.mailer.SendInvite(r.Context(), email.Invite{
		To:          addr.Address,
		InviterName: inviter,
		GroupName:   g.Name,
		Code:        inv.Code,
		Link:        inv.Link,
	})
	if err != nil {
		h.logger.Error("send invite email", "group_id", g.ID, "error", err)
		writeMessage(w, http.StatusBadGateway, "failed to send invite")
		return
	}
	h.logger.Info("invite emailed", "group_id", g.ID, "invited_by", ac.UserID)
	w.WriteHeader(http.StatusAccepted)
}
