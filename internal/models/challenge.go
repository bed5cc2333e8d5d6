package models

import "time"

// ChallengeKind distinguishes fixed-date challenges from self-paced ones.
type ChallengeKind string

const (
	ChallengeTimeBound ChallengeKind = "time_bound"
	ChallengeSelfPaced ChallengeKind = "self_paced"
)

// Challenge is a group activity members join and check in against.
type Challenge struct {
	ID           int64         `db:"id" json:"id"`
	OwnerID      int64         `db:"owner_id" json:"ownerId"`
	Title        string        `db:"title" json:"title"`
	Description  string        `db:"description" json:"description,omitempty"`
	Kind         ChallengeKind `db:"kind" json:"kind"`
	StartsOn     *time.Time    `db:"starts_on" json:"startsOn,omitempty"`
	EndsOn       *time.Time    `db:"ends_on" json:"endsOn,omitempty"`
	NumDays      int           `db:"num_days" json:"numDays,omitempty"`
	ReminderCron string        `db:"reminder_cron" json:"reminderCron,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"createdAt"`
}

// Cohort groups members of a challenge who started on the same day.
type Cohort struct {
	ID          int64     `db:"id" json:"id"`
	ChallengeID int64     `db:"challenge_id" json:"challengeId"`
	StartedOn   time.Time `db:"started_on" json:"startedOn"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Membership ties a user to a challenge and one of its cohorts.
type Membership struct {
	ChallengeID int64     `db:"challenge_id" json:"challengeId"`
	UserID      int64     `db:"user_id" json:"userId"`
	CohortID    int64     `db:"cohort_id" json:"cohortId"`
	JoinedAt    time.Time `db:"joined_at" json:"joinedAt"`
}

// ReminderTarget is a member who has not checked in on the current day.
type ReminderTarget struct {
	ChallengeID    int64     `db:"challenge_id"`
	ChallengeTitle string    `db:"title"`
	UserID         int64     `db:"user_id"`
	CohortID       int64     `db:"cohort_id"`
	StartedOn      time.Time `db:"started_on"`
	NumDays        int       `db:"num_days"`
}
