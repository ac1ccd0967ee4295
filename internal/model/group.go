package model

import "time"

type Group struct {
	ID         int64     `json:"id"`
	PublicID   string    `json:"public_id"`
	InviteCode string    `json:"invite_code"`
	Name       string    `json:"name"`
	CreatedBy  *int64    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

type GroupMember struct {
	GroupID   int64     `json:"group_id"`
	UserID    int64     `json:"user_id"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url"`
	JoinedAt  time.Time `json:"joined_at"`
}
