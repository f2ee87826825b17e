package channels

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-github/v56/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
)

// GitHubChannel opens a GitHub issue per delivered alert. It is meant
// to be registered with a critical severity floor so only alerts that
// need a human end up in the tracker.
type GitHubChannel struct {
	logger *zap.Logger
	client *github.Client
	owner  string
	repo   string
}

// NewGitHubChannel creates a GitHub issue channel. ownerRepo is the
// "owner/repo" slug of the tracker repository.
func NewGitHubChannel(logger *zap.Logger, token, ownerRepo string) (*GitHubChannel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if token == "" {
		return nil, fmt.Errorf("github token not configured")
	}

	owner, repo, ok := strings.Cut(ownerRepo, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("invalid github repository %q, expected owner/repo", ownerRepo)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)

	return &GitHubChannel{
		logger: logger,
		client: github.NewClient(tc),
		owner:  owner,
		repo:   repo,
	}, nil
}

// Name identifies the channel in logs, metrics, and breaker names.
func (c *GitHubChannel) Name() string {
	return "github"
}

// Send opens an issue for the alert.
func (c *GitHubChannel) Send(ctx context.Context, alert *alerting.Alert) error {
	issue := &github.IssueRequest{
		Title:  github.String(fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)),
		Body:   github.String(buildIssueBody(alert)),
		Labels: &[]string{"monitoring", string(alert.Severity)},
	}

	created, _, err := c.client.Issues.Create(ctx, c.owner, c.repo, issue)
	if err != nil {
		return fmt.Errorf("failed to create github issue: %w", err)
	}

	c.logger.Info("Opened GitHub issue for alert",
		zap.String("alert_id", alert.ID),
		zap.String("repo", c.owner+"/"+c.repo),
		zap.Int("issue_number", created.GetNumber()))

	return nil
}

// buildIssueBody renders the alert as issue markdown
func buildIssueBody(alert *alerting.Alert) string {
	var body strings.Builder

	body.WriteString(alert.Message)
	body.WriteString("\n\n")
	fmt.Fprintf(&body, "| | |\n|---|---|\n")
	fmt.Fprintf(&body, "| Source | `%s` |\n", alert.Source)
	fmt.Fprintf(&body, "| Severity | %s |\n", alert.Severity)
	fmt.Fprintf(&body, "| Fired at | %s |\n", alert.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	if alert.RuleID != "" {
		fmt.Fprintf(&body, "| Rule | `%s` |\n", alert.RuleID)
	}

	if len(alert.Metadata) > 0 {
		keys := make([]string, 0, len(alert.Metadata))
		for key := range alert.Metadata {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		body.WriteString("\n**Details**\n\n")
		for _, key := range keys {
			fmt.Fprintf(&body, "- %s: `%v`\n", key, alert.Metadata[key])
		}
	}

	return body.String()
}
