package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType is the kind of contribution an upstream provider reported.
type EventType string

const (
	EventTypeCommit      EventType = "commit"
	EventTypePullRequest EventType = "pull_request"
	EventTypeIssue       EventType = "issue"
	EventTypeReview      EventType = "review"
)

// NormalizeEventType maps provider spellings onto the canonical enum values.
// Pull requests in particular arrive as "pull_request", "pr" or "pullRequest"
// depending on the source.
func NormalizeEventType(raw string) EventType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pull_request", "pr", "pullrequest":
		return EventTypePullRequest
	case "commit":
		return EventTypeCommit
	case "issue":
		return EventTypeIssue
	case "review":
		return EventTypeReview
	default:
		return EventType(strings.ToLower(strings.TrimSpace(raw)))
	}
}

// RawEvent is an inbound contribution notification from an external provider.
// Immutable once admitted to the pipeline.
type RawEvent struct {
	EventId        string    `json:"event_id"`
	ProviderLogin  string    `json:"provider_user_login"`
	EventType      EventType `json:"event_type"`
	RepoIdentifier string    `json:"repo_identifier"`
	CommitHash     string    `json:"commit_hash,omitempty"`
	Metadata       Metadata  `json:"metadata"`
	Timestamp      time.Time `json:"timestamp"`
}

// Metadata carries the free-form event attributes. The fields the pipeline and
// analytics engine actually read are typed; everything else the provider sends
// is preserved verbatim in Extra so re-serialization is lossless.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	URL         string `json:"url,omitempty"`
	Merged      any    `json:"merged,omitempty"`
	Additions   int    `json:"additions,omitempty"`
	Deletions   int    `json:"deletions,omitempty"`
	ReviewCount int    `json:"review_count,omitempty"`
	Actor       string `json:"actor,omitempty"`
	Author      string `json:"author,omitempty"`

	Extra map[string]any `json:"-"`
}

// IsMerged reports whether the merged flag is truthy. Providers are
// inconsistent: booleans, "true" and "merged" all count as merged.
func (m Metadata) IsMerged() bool {
	switch v := m.Merged.(type) {
	case bool:
		return v
	case string:
		lower := strings.ToLower(v)
		return lower == "true" || lower == "merged"
	default:
		return false
	}
}

// ActorName returns the metadata actor, falling back to the author field.
func (m Metadata) ActorName() string {
	if m.Actor != "" {
		return m.Actor
	}

	return m.Author
}

var metadataKnownKeys = []string{
	"title", "url", "merged", "additions", "deletions", "review_count", "actor", "author",
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+len(metadataKnownKeys))
	for k, v := range m.Extra {
		out[k] = v
	}

	if m.Title != "" {
		out["title"] = m.Title
	}
	if m.URL != "" {
		out["url"] = m.URL
	}
	if m.Merged != nil {
		out["merged"] = m.Merged
	}
	if m.Additions != 0 {
		out["additions"] = m.Additions
	}
	if m.Deletions != 0 {
		out["deletions"] = m.Deletions
	}
	if m.ReviewCount != 0 {
		out["review_count"] = m.ReviewCount
	}
	if m.Actor != "" {
		out["actor"] = m.Actor
	}
	if m.Author != "" {
		out["author"] = m.Author
	}

	return json.Marshal(out)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = Metadata{}

	m.Title = popString(raw, "title")
	m.URL = popString(raw, "url")
	m.Actor = popString(raw, "actor")
	m.Author = popString(raw, "author")

	if v, ok := raw["merged"]; ok {
		m.Merged = v
		delete(raw, "merged")
	}

	var err error
	if m.Additions, err = popInt(raw, "additions"); err != nil {
		return err
	}
	if m.Deletions, err = popInt(raw, "deletions"); err != nil {
		return err
	}
	if m.ReviewCount, err = popInt(raw, "review_count"); err != nil {
		return err
	}

	if len(raw) > 0 {
		m.Extra = raw
	}

	return nil
}

func popString(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}

	s, ok := v.(string)
	if !ok {
		return ""
	}

	delete(raw, key)
	return s
}

func popInt(raw map[string]any, key string) (int, error) {
	v, ok := raw[key]
	if !ok {
		return 0, nil
	}

	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("metadata field %q: expected number, got %T", key, v)
	}

	delete(raw, key)
	return int(f), nil
}
