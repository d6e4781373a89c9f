package models

import (
	"strings"
	"time"
)

// EventKind classifies a GitHub event for display purposes.
type EventKind int

const (
	KindOther EventKind = iota
	KindPush
	KindIssues
	KindPullRequest
	KindFork
	KindWatch
)

var kindNames = map[EventKind]string{
	KindOther:       "Other",
	KindPush:        "Push",
	KindIssues:      "Issues",
	KindPullRequest: "PullRequest",
	KindFork:        "Fork",
	KindWatch:       "Watch",
}

func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Other"
}

// eventKinds maps raw GitHub event type strings to kinds. Issue comments
// count as issue activity; anything unlisted is KindOther.
var eventKinds = map[string]EventKind{
	"PushEvent":         KindPush,
	"IssuesEvent":       KindIssues,
	"IssueCommentEvent": KindIssues,
	"PullRequestEvent":  KindPullRequest,
	"ForkEvent":         KindFork,
	"WatchEvent":        KindWatch,
}

// KindForEventType returns the kind for a raw GitHub event type string.
func KindForEventType(eventType string) EventKind {
	if kind, ok := eventKinds[eventType]; ok {
		return kind
	}
	return KindOther
}

// NormalizeIdentity folds a username into its canonical cache key.
// GitHub logins are case-insensitive, so "Alice" and "alice" must share
// one cache entry.
func NormalizeIdentity(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// ActivityRecord represents one GitHub event. Records are immutable once
// constructed.
type ActivityRecord struct {
	Kind           EventKind
	ActorLogin     string
	ActorAvatarURL string
	Summary        string
	URL            string
	CreatedAt      time.Time
}

// UserProfile represents the subset of a GitHub user shown alongside
// their activity.
type UserProfile struct {
	Login      string
	Name       string
	AvatarURL  string
	ProfileURL string
}

// DisplayName returns the user's name, falling back to their login.
func (u *UserProfile) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Login
}

// ActivityBatch holds one user's fetched activity, newest first.
type ActivityBatch struct {
	Identity  string
	User      *UserProfile
	Records   []ActivityRecord
	FetchedAt time.Time
}

// Clone returns an independent copy of the batch so cached data is never
// aliased by callers.
func (b *ActivityBatch) Clone() *ActivityBatch {
	if b == nil {
		return nil
	}
	cp := *b
	if b.User != nil {
		user := *b.User
		cp.User = &user
	}
	cp.Records = make([]ActivityRecord, len(b.Records))
	copy(cp.Records, b.Records)
	return &cp
}

// Age reports how long ago the batch was fetched.
func (b *ActivityBatch) Age(now time.Time) time.Duration {
	return now.Sub(b.FetchedAt)
}

// QuotaState captures the server-reported API rate limit. Known is false
// until the first response has been observed; before that the quota is
// assumed available.
type QuotaState struct {
	Remaining int
	Limit     int
	ResetAt   time.Time
	Known     bool
}
