package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/coolive/internal/model"
)

// ErrEmailTaken is returned by Create when the email already has an account.
var ErrEmailTaken = errors.New("email already registered")

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := scanner.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanProfile(scanner interface{ Scan(...any) error }) (*model.Profile, error) {
	var p model.Profile
	err := scanner.Scan(&p.ID, &p.FullName, &p.AvatarURL, &p.Bio, &p.Points, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const userCols = `id, email, password_hash, created_at`
const profileCols = `id, full_name, avatar_url, bio, points, created_at, updated_at`

// Create inserts the account and its zero-point profile together.
func (s *UserStore) Create(ctx context.Context, email, passwordHash, fullName, avatarURL string) (*model.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO users (email, password_hash) VALUES (?, ?)`,
		email, passwordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (id, full_name, avatar_url) VALUES (?, ?, ?)`,
		id, fullName, avatarURL,
	); err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}

	u, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, strings.TrimSpace(email))
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// --- Profile methods ---

func (s *UserStore) GetProfile(ctx context.Context, id int64) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileCols+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// UpdateProfile edits the descriptive fields. Points are never written here.
func (s *UserStore) UpdateProfile(ctx context.Context, id int64, fullName, bio string) (*model.Profile, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET full_name = ?, bio = ? WHERE id = ?`,
		fullName, bio, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.GetProfile(ctx, id)
}

func (s *UserStore) SetAvatarURL(ctx context.Context, id int64, url string) (*model.Profile, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE profiles SET avatar_url = ? WHERE id = ?`, url, id)
	if err != nil {
		return nil, fmt.Errorf("set avatar url: %w", err)
	}
	return s.GetProfile(ctx, id)
}

// AdjustPoints applies delta atomically, flooring the balance at zero, and
// returns the new balance.
func (s *UserStore) AdjustPoints(ctx context.Context, id int64, delta int) (int, error) {
	return adjustPoints(ctx, s.db, id, delta)
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func adjustPoints(ctx context.Context, q execQuerier, id int64, delta int) (int, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE profiles SET points = MAX(points + ?, 0) WHERE id = ?`,
		delta, id,
	)
	if err != nil {
		return 0, fmt.Errorf("adjust points: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("adjust points: profile %d not found", id)
	}

	var points int
	if err := q.QueryRowContext(ctx, `SELECT points FROM profiles WHERE id = ?`, id).Scan(&points); err != nil {
		return 0, fmt.Errorf("read points: %w", err)
	}
	return points, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
