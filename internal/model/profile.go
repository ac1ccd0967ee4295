package model

import "time"

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Profile struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url"`
	Bio       string    `json:"bio"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PointAward is the audit record of a manual bonus.
type PointAward struct {
	ID        int64     `json:"id"`
	GroupID   int64     `json:"group_id"`
	UserID    int64     `json:"user_id"`
	GrantedBy *int64    `json:"granted_by"`
	Points    int       `json:"points"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Standing is one leaderboard row before ranking.
type Standing struct {
	Rank           int    `json:"rank"`
	UserID         int64  `json:"user_id"`
	FullName       string `json:"full_name"`
	AvatarURL      string `json:"avatar_url"`
	Points         int    `json:"points"`
	TasksCompleted int    `json:"tasks_completed"`
}
