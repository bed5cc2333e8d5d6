package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"challenge-chat/internal/models"
)

var ErrLikeNotFound = errors.New("like not found")

// LikeRepository persists likes on posts, check-ins and comments.
type LikeRepository interface {
	Like(ctx context.Context, userID int64, kind models.ItemKind, targetID int64) (models.Like, bool, error)
	Unlike(ctx context.Context, userID int64, kind models.ItemKind, targetID int64) error
	ListLikedIDs(ctx context.Context, userID int64, kind models.ItemKind) ([]int64, error)
	CountLikes(ctx context.Context, kind models.ItemKind, targetIDs []int64) (map[int64]int, error)
}

// LikeRepo is a sqlx implementation of LikeRepository.
type LikeRepo struct {
	db *sqlx.DB
}

// NewLikeRepo constructs a LikeRepo.
func NewLikeRepo(db *sqlx.DB) *LikeRepo {
	return &LikeRepo{db: db}
}

// Like records a like. The bool is false when the like already existed.
func (r *LikeRepo) Like(ctx context.Context, userID int64, kind models.ItemKind, targetID int64) (models.Like, bool, error) {
	var like models.Like
	err := r.db.QueryRowxContext(ctx, `INSERT INTO likes (user_id, target_kind, target_id) VALUES ($1, $2, $3)
        ON CONFLICT (user_id, target_kind, target_id) DO NOTHING
        RETURNING id, user_id, target_kind, target_id, created_at`, userID, kind, targetID).StructScan(&like)
	if err == nil {
		return like, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Like{}, false, fmt.Errorf("insert like: %w", err)
	}
	err = r.db.GetContext(ctx, &like, `SELECT id, user_id, target_kind, target_id, created_at FROM likes
        WHERE user_id=$1 AND target_kind=$2 AND target_id=$3`, userID, kind, targetID)
	return like, false, err
}

// Unlike removes a like.
func (r *LikeRepo) Unlike(ctx context.Context, userID int64, kind models.ItemKind, targetID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM likes WHERE user_id=$1 AND target_kind=$2 AND target_id=$3`, userID, kind, targetID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrLikeNotFound
	}
	return nil
}

// ListLikedIDs returns the ids of every target of the given kind the user liked.
func (r *LikeRepo) ListLikedIDs(ctx context.Context, userID int64, kind models.ItemKind) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `SELECT target_id FROM likes WHERE user_id=$1 AND target_kind=$2 ORDER BY target_id`, userID, kind)
	return ids, err
}

// CountLikes returns like counts for the given targets. Targets without likes
// are absent from the map.
func (r *LikeRepo) CountLikes(ctx context.Context, kind models.ItemKind, targetIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int)
	if len(targetIDs) == 0 {
		return counts, nil
	}
	rows, err := r.db.QueryxContext(ctx, `SELECT target_id, COUNT(*) FROM likes
        WHERE target_kind=$1 AND target_id = ANY($2)
        GROUP BY target_id`, kind, pq.Array(targetIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
