package models

import "time"

// Like is one user's like on a post, check-in or comment.
type Like struct {
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"userId"`
	TargetKind ItemKind  `db:"target_kind" json:"targetKind"`
	TargetID   int64     `db:"target_id" json:"targetId"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
