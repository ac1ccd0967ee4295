package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/coolive/internal/invite"
	"github.com/dukerupert/coolive/internal/model"
)

var (
	// ErrAlreadyMember is returned when the user already belongs to a different group.
	ErrAlreadyMember = errors.New("user already belongs to a group")
	// ErrCodeExhausted is returned when no collision-free invite code could be found.
	ErrCodeExhausted = errors.New("could not allocate invite code")
)

const maxCodeAttempts = 8

type GroupStore struct {
	db *sql.DB
	// newID is swapped in tests to force invite code collisions.
	newID func() string
}

func NewGroupStore(db *sql.DB) *GroupStore {
	return &GroupStore{db: db, newID: invite.NewPublicID}
}

func scanGroup(scanner interface{ Scan(...any) error }) (*model.Group, error) {
	var g model.Group
	var createdBy sql.NullInt64
	err := scanner.Scan(&g.ID, &g.PublicID, &g.InviteCode, &g.Name, &createdBy, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	if createdBy.Valid {
		g.CreatedBy = &createdBy.Int64
	}
	return &g, nil
}

func scanGroupMember(scanner interface{ Scan(...any) error }) (*model.GroupMember, error) {
	var m model.GroupMember
	err := scanner.Scan(&m.GroupID, &m.UserID, &m.FullName, &m.AvatarURL, &m.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const groupCols = `id, public_id, invite_code, name, created_by, created_at`
const groupMemberCols = `gm.group_id, gm.user_id, p.full_name, p.avatar_url, gm.joined_at`

// Create inserts the group and makes the creator its first member. A fresh
// public id is drawn whenever its short code collides with an existing group.
func (s *GroupStore) Create(ctx context.Context, name string, createdBy int64) (*model.Group, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT group_id FROM group_members WHERE user_id = ?`, createdBy).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if current.Valid {
		return nil, ErrAlreadyMember
	}

	var id int64
	for attempt := 0; ; attempt++ {
		if attempt == maxCodeAttempts {
			return nil, ErrCodeExhausted
		}
		publicID := s.newID()
		result, err := tx.ExecContext(ctx,
			`INSERT INTO groups (public_id, invite_code, name, created_by) VALUES (?, ?, ?, ?)`,
			publicID, invite.Code(publicID), name, createdBy,
		)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert group: %w", err)
		}
		if id, err = result.LastInsertId(); err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		break
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id) VALUES (?, ?)`,
		id, createdBy,
	); err != nil {
		return nil, fmt.Errorf("add creator: %w", err)
	}

	g, err := scanGroup(tx.QueryRowContext(ctx, `SELECT `+groupCols+` FROM groups WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return g, nil
}

func (s *GroupStore) GetByID(ctx context.Context, id int64) (*model.Group, error) {
	return s.getOne(ctx, `SELECT `+groupCols+` FROM groups WHERE id = ?`, id)
}

func (s *GroupStore) GetByPublicID(ctx context.Context, publicID string) (*model.Group, error) {
	return s.getOne(ctx, `SELECT `+groupCols+` FROM groups WHERE public_id = ?`, publicID)
}

// GetByCode looks a group up by its short code, ignoring case and punctuation.
func (s *GroupStore) GetByCode(ctx context.Context, code string) (*model.Group, error) {
	code = invite.NormalizeCode(code)
	if len(code) != invite.CodeLength {
		return nil, nil
	}
	return s.getOne(ctx, `SELECT `+groupCols+` FROM groups WHERE invite_code = ?`, code)
}

func (s *GroupStore) getOne(ctx context.Context, query string, arg any) (*model.Group, error) {
	g, err := scanGroup(s.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

// AddMember joins userID to groupID. Joining the group the user is already in
// succeeds; joining while a member elsewhere returns ErrAlreadyMember.
func (s *GroupStore) AddMember(ctx context.Context, groupID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id) VALUES (?, ?)`,
		groupID, userID,
	)
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return fmt.Errorf("add member: %w", err)
	}

	current, lookupErr := s.GroupIDForUser(ctx, userID)
	if lookupErr != nil {
		return lookupErr
	}
	if current != nil && *current == groupID {
		return nil
	}
	return ErrAlreadyMember
}

// RemoveMember deletes the membership and forgets it on the user's sessions.
func (s *GroupStore) RemoveMember(ctx context.Context, groupID, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET group_id = NULL WHERE user_id = ? AND group_id = ?`,
		userID, groupID,
	); err != nil {
		return fmt.Errorf("clear session group: %w", err)
	}
	return tx.Commit()
}

func (s *GroupStore) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check member: %w", err)
	}
	return n > 0, nil
}

// GroupIDForUser returns the group the user belongs to, or nil.
func (s *GroupStore) GroupIDForUser(ctx context.Context, userID int64) (*int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT group_id FROM group_members WHERE user_id = ? LIMIT 1`,
		userID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("group for user: %w", err)
	}
	return &id, nil
}

func (s *GroupStore) ListMembers(ctx context.Context, groupID int64) ([]model.GroupMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+groupMemberCols+`
		 FROM group_members gm
		 JOIN profiles p ON p.id = gm.user_id
		 WHERE gm.group_id = ?
		 ORDER BY gm.joined_at ASC, gm.user_id ASC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.GroupMember
	for rows.Next() {
		m, err := scanGroupMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}
