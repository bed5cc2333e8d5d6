package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"challenge-chat/internal/models"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrNotMember         = errors.New("not a challenge member")
)

// ChallengeRepository abstracts challenge, cohort and membership persistence.
type ChallengeRepository interface {
	CreateChallenge(ctx context.Context, c models.Challenge) (models.Challenge, error)
	GetChallenge(ctx context.Context, challengeID int64) (models.Challenge, error)
	ListChallengesForUser(ctx context.Context, userID int64) ([]models.Challenge, error)
	Join(ctx context.Context, challengeID, userID int64, startedOn time.Time) (models.Membership, error)
	GetMembership(ctx context.Context, challengeID, userID int64) (models.Membership, error)
	ListActiveChallenges(ctx context.Context, now time.Time) ([]models.Challenge, error)
	ListMembersWithoutCheckIn(ctx context.Context, challengeID int64, from, to time.Time) ([]models.ReminderTarget, error)
}

// ChallengeRepo is a sqlx implementation of ChallengeRepository.
type ChallengeRepo struct {
	db *sqlx.DB
}

// NewChallengeRepo constructs a ChallengeRepo.
func NewChallengeRepo(db *sqlx.DB) *ChallengeRepo {
	return &ChallengeRepo{db: db}
}

const challengeColumns = `id, owner_id, title, description, kind, starts_on, ends_on, num_days, reminder_cron, created_at`

// CreateChallenge stores a challenge. Time-bound challenges get their single
// cohort right away.
func (r *ChallengeRepo) CreateChallenge(ctx context.Context, c models.Challenge) (models.Challenge, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Challenge{}, err
	}
	defer tx.Rollback()

	var created models.Challenge
	err = tx.QueryRowxContext(ctx, `INSERT INTO challenges (owner_id, title, description, kind, starts_on, ends_on, num_days, reminder_cron)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+challengeColumns,
		c.OwnerID, c.Title, c.Description, c.Kind, c.StartsOn, c.EndsOn, c.NumDays, c.ReminderCron).StructScan(&created)
	if err != nil {
		return models.Challenge{}, fmt.Errorf("insert challenge: %w", err)
	}

	if created.Kind == models.ChallengeTimeBound && created.StartsOn != nil {
		if _, err := tx.ExecContext(ctx, `INSERT INTO cohorts (challenge_id, started_on) VALUES ($1, $2)`, created.ID, *created.StartsOn); err != nil {
			return models.Challenge{}, fmt.Errorf("insert cohort: %w", err)
		}
	}

	return created, tx.Commit()
}

// GetChallenge fetches a challenge by id.
func (r *ChallengeRepo) GetChallenge(ctx context.Context, challengeID int64) (models.Challenge, error) {
	var c models.Challenge
	err := r.db.GetContext(ctx, &c, `SELECT `+challengeColumns+` FROM challenges WHERE id=$1`, challengeID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Challenge{}, ErrChallengeNotFound
	}
	return c, err
}

// ListChallengesForUser returns challenges the user owns or joined, newest first.
func (r *ChallengeRepo) ListChallengesForUser(ctx context.Context, userID int64) ([]models.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges c
        WHERE c.owner_id=$1 OR EXISTS (SELECT 1 FROM memberships m WHERE m.challenge_id=c.id AND m.user_id=$1)
        ORDER BY c.created_at DESC`
	var list []models.Challenge
	err := r.db.SelectContext(ctx, &list, query, userID)
	return list, err
}

// Join adds the user to the cohort starting on startedOn, creating the cohort
// when needed. Joining twice returns the existing membership.
func (r *ChallengeRepo) Join(ctx context.Context, challengeID, userID int64, startedOn time.Time) (models.Membership, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Membership{}, err
	}
	defer tx.Rollback()

	var cohortID int64
	err = tx.QueryRowxContext(ctx, `INSERT INTO cohorts (challenge_id, started_on) VALUES ($1, $2)
        ON CONFLICT (challenge_id, started_on) DO UPDATE SET started_on = EXCLUDED.started_on
        RETURNING id`, challengeID, startedOn.Format("2006-01-02")).Scan(&cohortID)
	if err != nil {
		return models.Membership{}, fmt.Errorf("upsert cohort: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO memberships (challenge_id, user_id, cohort_id) VALUES ($1, $2, $3)
        ON CONFLICT (challenge_id, user_id) DO NOTHING`, challengeID, userID, cohortID); err != nil {
		return models.Membership{}, fmt.Errorf("insert membership: %w", err)
	}

	var m models.Membership
	if err := tx.GetContext(ctx, &m, `SELECT challenge_id, user_id, cohort_id, joined_at FROM memberships WHERE challenge_id=$1 AND user_id=$2`, challengeID, userID); err != nil {
		return models.Membership{}, err
	}
	return m, tx.Commit()
}

// GetMembership returns the user's membership in a challenge.
func (r *ChallengeRepo) GetMembership(ctx context.Context, challengeID, userID int64) (models.Membership, error) {
	var m models.Membership
	err := r.db.GetContext(ctx, &m, `SELECT challenge_id, user_id, cohort_id, joined_at FROM memberships WHERE challenge_id=$1 AND user_id=$2`, challengeID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Membership{}, ErrNotMember
	}
	return m, err
}

// ListActiveChallenges returns challenges that are running at now.
func (r *ChallengeRepo) ListActiveChallenges(ctx context.Context, now time.Time) ([]models.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges
        WHERE (kind = 'time_bound' AND starts_on <= $1::date AND (ends_on IS NULL OR ends_on >= $1::date))
        OR kind = 'self_paced'`
	var list []models.Challenge
	err := r.db.SelectContext(ctx, &list, query, now)
	return list, err
}

// ListMembersWithoutCheckIn returns members with no check-in in [from, to).
func (r *ChallengeRepo) ListMembersWithoutCheckIn(ctx context.Context, challengeID int64, from, to time.Time) ([]models.ReminderTarget, error) {
	query := `SELECT m.challenge_id, c.title, m.user_id, m.cohort_id, co.started_on,
            CASE WHEN c.kind = 'time_bound' AND c.ends_on IS NOT NULL THEN (c.ends_on - c.starts_on) + 1 ELSE c.num_days END AS num_days
        FROM memberships m
        JOIN challenges c ON c.id = m.challenge_id
        JOIN cohorts co ON co.id = m.cohort_id
        WHERE m.challenge_id = $1
        AND (c.kind = 'time_bound' OR co.started_on + c.num_days > $2::date)
        AND NOT EXISTS (
            SELECT 1 FROM check_ins ci
            WHERE ci.challenge_id = m.challenge_id AND ci.user_id = m.user_id
            AND ci.created_at >= $2 AND ci.created_at < $3
        )`
	var targets []models.ReminderTarget
	err := r.db.SelectContext(ctx, &targets, query, challengeID, from, to)
	return targets, err
}
