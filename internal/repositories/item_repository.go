package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"challenge-chat/internal/models"
)

var ErrItemNotFound = errors.New("item not found")

// ItemRepository stores posts, check-ins and comments and reads them back as
// ChatItems.
type ItemRepository interface {
	// The create methods report created=false when the same client id was
	// already written by this user and the stored row is returned instead.
	CreatePost(ctx context.Context, item models.ChatItem) (models.ChatItem, bool, error)
	CreateCheckIn(ctx context.Context, item models.ChatItem) (models.ChatItem, bool, error)
	CreateComment(ctx context.Context, item models.ChatItem) (models.ChatItem, bool, error)
	GetItem(ctx context.Context, kind models.ItemKind, id int64) (models.ChatItem, error)
	ListComments(ctx context.Context, parentKind models.ParentKind, parentID int64) ([]models.ChatItem, error)
	ListCohortItems(ctx context.Context, challengeID, cohortID int64) ([]models.ChatItem, error)
}

// ItemRepo is a sqlx implementation of ItemRepository.
type ItemRepo struct {
	db *sqlx.DB
}

// NewItemRepo constructs an ItemRepo.
func NewItemRepo(db *sqlx.DB) *ItemRepo {
	return &ItemRepo{db: db}
}

const (
	postColumns = `id, client_id, 'post' AS kind, user_id, body, image_url, video_url,
        '' AS parent_kind, 0::bigint AS parent_id, COALESCE(challenge_id, 0) AS challenge_id, cohort_id, created_at`
	checkInColumns = `id, client_id, 'check_in' AS kind, user_id, body, image_url, video_url,
        '' AS parent_kind, 0::bigint AS parent_id, challenge_id, cohort_id, created_at`
	commentColumns = `id, client_id, 'comment' AS kind, user_id, body, image_url, video_url,
        parent_kind, parent_id, challenge_id, cohort_id, created_at`
)

var itemTables = map[models.ItemKind]struct{ table, columns string }{
	models.KindPost:    {"posts", postColumns},
	models.KindCheckIn: {"check_ins", checkInColumns},
	models.KindComment: {"comments", commentColumns},
}

// CreatePost stores a post. Posts outside a challenge carry a zero ChallengeID.
func (r *ItemRepo) CreatePost(ctx context.Context, item models.ChatItem) (models.ChatItem, bool, error) {
	var created models.ChatItem
	err := r.db.QueryRowxContext(ctx, `INSERT INTO posts (user_id, challenge_id, cohort_id, body, image_url, video_url, client_id)
        VALUES ($1, NULLIF($2::bigint, 0), $3, $4, $5, $6, $7)
        ON CONFLICT (user_id, client_id) WHERE client_id <> '' DO NOTHING
        RETURNING `+postColumns,
		item.UserID, item.ChallengeID, item.CohortID, item.Body, item.ImageURL, item.VideoURL, item.ClientID).StructScan(&created)
	return r.resolveReplay(ctx, models.KindPost, item, created, err)
}

// CreateCheckIn stores a check-in for the member's cohort.
func (r *ItemRepo) CreateCheckIn(ctx context.Context, item models.ChatItem) (models.ChatItem, bool, error) {
	var created models.ChatItem
	err := r.db.QueryRowxContext(ctx, `INSERT INTO check_ins (challenge_id, cohort_id, user_id, body, image_url, video_url, client_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (user_id, client_id) WHERE client_id <> '' DO NOTHING
        RETURNING `+checkInColumns,
		item.ChallengeID, item.CohortID, item.UserID, item.Body, item.ImageURL, item.VideoURL, item.ClientID).StructScan(&created)
	return r.resolveReplay(ctx, models.KindCheckIn, item, created, err)
}

// CreateComment stores a comment under its resolved parent.
func (r *ItemRepo) CreateComment(ctx context.Context, item models.ChatItem) (models.ChatItem, bool, error) {
	var created models.ChatItem
	err := r.db.QueryRowxContext(ctx, `INSERT INTO comments (user_id, parent_kind, parent_id, challenge_id, cohort_id, body, image_url, video_url, client_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (user_id, client_id) WHERE client_id <> '' DO NOTHING
        RETURNING `+commentColumns,
		item.UserID, item.ParentKind, item.ParentID, item.ChallengeID, item.CohortID, item.Body, item.ImageURL, item.VideoURL, item.ClientID).StructScan(&created)
	return r.resolveReplay(ctx, models.KindComment, item, created, err)
}

// resolveReplay returns the stored row when an insert was skipped because the
// same client id was already written by this user.
func (r *ItemRepo) resolveReplay(ctx context.Context, kind models.ItemKind, item, created models.ChatItem, err error) (models.ChatItem, bool, error) {
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) || item.ClientID == "" {
		return models.ChatItem{}, false, fmt.Errorf("insert %s: %w", kind, err)
	}
	t := itemTables[kind]
	var existing models.ChatItem
	if err := r.db.GetContext(ctx, &existing, `SELECT `+t.columns+` FROM `+t.table+` WHERE user_id=$1 AND client_id=$2`, item.UserID, item.ClientID); err != nil {
		return models.ChatItem{}, false, fmt.Errorf("load replayed %s: %w", kind, err)
	}
	return existing, false, nil
}

// GetItem fetches a single post, check-in or comment.
func (r *ItemRepo) GetItem(ctx context.Context, kind models.ItemKind, id int64) (models.ChatItem, error) {
	t, ok := itemTables[kind]
	if !ok {
		return models.ChatItem{}, ErrItemNotFound
	}
	var item models.ChatItem
	err := r.db.GetContext(ctx, &item, `SELECT `+t.columns+` FROM `+t.table+` WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatItem{}, ErrItemNotFound
	}
	return item, err
}

// ListComments returns the comments under one parent, oldest first.
func (r *ItemRepo) ListComments(ctx context.Context, parentKind models.ParentKind, parentID int64) ([]models.ChatItem, error) {
	query := `SELECT ` + commentColumns + ` FROM comments
        WHERE parent_kind=$1 AND parent_id=$2
        ORDER BY created_at ASC, id ASC`
	var items []models.ChatItem
	err := r.db.SelectContext(ctx, &items, query, parentKind, parentID)
	return items, err
}

// ListCohortItems returns every post, check-in and comment in a cohort's chat,
// oldest first.
func (r *ItemRepo) ListCohortItems(ctx context.Context, challengeID, cohortID int64) ([]models.ChatItem, error) {
	query := `SELECT * FROM (
            SELECT ` + postColumns + ` FROM posts WHERE challenge_id=$1 AND cohort_id=$2
            UNION ALL
            SELECT ` + checkInColumns + ` FROM check_ins WHERE challenge_id=$1 AND cohort_id=$2
            UNION ALL
            SELECT ` + commentColumns + ` FROM comments WHERE challenge_id=$1 AND cohort_id=$2
        ) items
        ORDER BY created_at ASC, id ASC`
	var items []models.ChatItem
	err := r.db.SelectContext(ctx, &items, query, challengeID, cohortID)
	return items, err
}
