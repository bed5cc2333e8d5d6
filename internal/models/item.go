package models

import "time"

// ItemKind tells which table a ChatItem came from.
type ItemKind string

const (
	KindPost    ItemKind = "post"
	KindCheckIn ItemKind = "check_in"
	KindComment ItemKind = "comment"
)

// ParentKind is the discriminator for what a comment hangs off.
type ParentKind string

const (
	ParentPost      ParentKind = "post"
	ParentChallenge ParentKind = "challenge"
	ParentCheckIn   ParentKind = "check_in"
	ParentThread    ParentKind = "thread"
	ParentReply     ParentKind = "reply"
)

// Valid reports whether k is one of the known parent kinds.
func (k ParentKind) Valid() bool {
	switch k {
	case ParentPost, ParentChallenge, ParentCheckIn, ParentThread, ParentReply:
		return true
	}
	return false
}

// ChatItem is a post, check-in or comment as it travels over HTTP and the
// realtime channel. ID is zero until the server has persisted it.
type ChatItem struct {
	ID          int64      `db:"id" json:"id,omitempty"`
	ClientID    string     `db:"client_id" json:"clientId,omitempty"`
	Kind        ItemKind   `db:"kind" json:"kind"`
	UserID      int64      `db:"user_id" json:"userId"`
	Body        string     `db:"body" json:"body,omitempty"`
	ImageURL    string     `db:"image_url" json:"imageUrl,omitempty"`
	VideoURL    string     `db:"video_url" json:"videoUrl,omitempty"`
	ParentKind  ParentKind `db:"parent_kind" json:"parentKind,omitempty"`
	ParentID    int64      `db:"parent_id" json:"parentId,omitempty"`
	ChallengeID int64      `db:"challenge_id" json:"challengeId,omitempty"`
	CohortID    int64      `db:"cohort_id" json:"cohortId,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

// Confirmed reports whether the server has assigned an id.
func (i ChatItem) Confirmed() bool {
	return i.ID != 0
}
