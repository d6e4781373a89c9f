package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/kvasirlabs/gh-activity/internal/apperror"
	"github.com/kvasirlabs/gh-activity/internal/models"
)

// DefaultMaxEvents caps how many events a single fetch returns.
const DefaultMaxEvents = 50

// Client wraps the GitHub REST API for activity lookups.
type Client struct {
	gh        *github.Client
	maxEvents int
}

// NewClient creates a new GitHub API client. An empty token yields an
// unauthenticated client with the lower anonymous quota.
func NewClient(token string) *Client {
	var tc *http.Client

	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc = oauth2.NewClient(context.Background(), ts)
	}

	return &Client{
		gh:        github.NewClient(tc),
		maxEvents: DefaultMaxEvents,
	}
}

// SetMaxEvents sets how many events a fetch returns, clamped to 1-100
// (100 is the API's per-page ceiling).
func (c *Client) SetMaxEvents(n int) {
	if n < 1 {
		n = 1
	}
	if n > 100 {
		n = 100
	}
	c.maxEvents = n
}

// FetchActivity performs one round trip for a user: profile plus recent
// public events. The returned QuotaState reflects the latest rate-limit
// headers seen, on success and failure alike, so the caller can keep its
// tracker accurate even for rejected calls.
func (c *Client) FetchActivity(ctx context.Context, login string) (*models.ActivityBatch, models.QuotaState, error) {
	var quota models.QuotaState

	user, resp, err := c.gh.Users.Get(ctx, login)
	mergeQuota(&quota, resp)
	if err != nil {
		return nil, quota, translateError(login, err)
	}

	opts := &github.ListOptions{PerPage: c.maxEvents}
	events, resp, err := c.gh.Activity.ListEventsPerformedByUser(ctx, login, true, opts)
	mergeQuota(&quota, resp)
	if err != nil {
		return nil, quota, translateError(login, err)
	}

	if len(events) > c.maxEvents {
		events = events[:c.maxEvents]
	}

	records := make([]models.ActivityRecord, 0, len(events))
	for _, event := range events {
		records = append(records, convertEvent(event))
	}

	batch := &models.ActivityBatch{
		Identity:  models.NormalizeIdentity(login),
		User:      convertUser(user),
		Records:   records,
		FetchedAt: time.Now(),
	}
	return batch, quota, nil
}

// mergeQuota folds a response's rate-limit headers into quota. Responses
// without rate headers leave the previous state untouched.
func mergeQuota(quota *models.QuotaState, resp *github.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}
	*quota = models.QuotaState{
		Remaining: resp.Rate.Remaining,
		Limit:     resp.Rate.Limit,
		ResetAt:   resp.Rate.Reset.Time,
		Known:     true,
	}
}

// translateError maps a go-github error to the core taxonomy. The client
// performs no retries; retry policy belongs to the service.
func translateError(login string, err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return apperror.RateLimited(time.Until(rateErr.Rate.Reset.Time))
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return apperror.RateLimited(abuseErr.GetRetryAfter())
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusNotFound:
			return apperror.NotFound(login)
		case http.StatusForbidden, http.StatusTooManyRequests:
			return apperror.RateLimited(0)
		}
	}

	return apperror.Transport(err)
}

// convertUser converts a GitHub user to our model
func convertUser(user *github.User) *models.UserProfile {
	if user == nil {
		return nil
	}

	return &models.UserProfile{
		Login:      user.GetLogin(),
		Name:       user.GetName(),
		AvatarURL:  user.GetAvatarURL(),
		ProfileURL: user.GetHTMLURL(),
	}
}

// convertEvent converts a GitHub event to our model
func convertEvent(event *github.Event) models.ActivityRecord {
	summary, url := summarizeEvent(event)

	return models.ActivityRecord{
		Kind:           models.KindForEventType(event.GetType()),
		ActorLogin:     event.GetActor().GetLogin(),
		ActorAvatarURL: event.GetActor().GetAvatarURL(),
		Summary:        summary,
		URL:            url,
		CreatedAt:      event.GetCreatedAt().Time,
	}
}

// summarizeEvent builds the human-readable summary and canonical web URL
// for an event. Events whose payload fails to parse, or whose type has no
// specific wording, fall back to a generic summary on the repository page.
func summarizeEvent(event *github.Event) (string, string) {
	repoName := event.GetRepo().GetName()
	if repoName == "" {
		repoName = "N/A"
	}
	repoURL := fmt.Sprintf("https://github.com/%s", repoName)

	summary := fmt.Sprintf("Performed %s in %s", event.GetType(), repoName)
	url := repoURL

	payload, err := event.ParsePayload()
	if err != nil {
		return summary, url
	}

	switch p := payload.(type) {
	case *github.PushEvent:
		summary = fmt.Sprintf("Pushed %d commit(s) to %s", p.GetSize(), repoName)
	case *github.IssuesEvent:
		if u := p.GetIssue().GetHTMLURL(); u != "" {
			url = u
		}
		summary = fmt.Sprintf("%s issue in %s: '%s'",
			capitalize(p.GetAction()), repoName, p.GetIssue().GetTitle())
	case *github.IssueCommentEvent:
		if u := p.GetComment().GetHTMLURL(); u != "" {
			url = u
		}
		summary = fmt.Sprintf("Commented on an issue in %s", repoName)
	case *github.PullRequestEvent:
		if u := p.GetPullRequest().GetHTMLURL(); u != "" {
			url = u
		}
		summary = fmt.Sprintf("%s PR #%d in %s",
			capitalize(p.GetAction()), p.GetNumber(), repoName)
	case *github.WatchEvent:
		summary = fmt.Sprintf("Starred %s", repoName)
	case *github.ForkEvent:
		if u := p.GetForkee().GetHTMLURL(); u != "" {
			url = u
		}
		summary = fmt.Sprintf("Forked %s to %s", repoName, p.GetForkee().GetFullName())
	case *github.CreateEvent:
		summary = fmt.Sprintf("Created %s in %s", p.GetRefType(), repoName)
	case *github.DeleteEvent:
		summary = fmt.Sprintf("Deleted %s in %s", p.GetRefType(), repoName)
	case *github.ReleaseEvent:
		if u := p.GetRelease().GetHTMLURL(); u != "" {
			url = u
		}
		summary = fmt.Sprintf("Published release in %s", repoName)
	}

	return summary, url
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
