package types

import "time"

// Contribution is the per-event record written to the contributor store when
// a proof is admitted. The write is best-effort: the proof itself is the
// source of truth, so a failed contribution write is logged, not fatal.
type Contribution struct {
	ContributorId string    `json:"contributor_id" bson:"contributor_id"`
	Type          EventType `json:"type" bson:"type"`
	Repo          string    `json:"repo" bson:"repo"`
	Title         string    `json:"title,omitempty" bson:"title,omitempty"`
	URL           string    `json:"url,omitempty" bson:"url,omitempty"`
	Verified      bool      `json:"verified" bson:"verified"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
}
