// Package alerts posts high-severity events to a Slack incoming webhook.
//
// The notifier is quiet by default: events below the severity threshold
// never leave the process, and an empty webhook URL disables it entirely.
// Delivery is fire-and-forget; a failed post is logged and dropped so the
// ingest path never blocks on Slack.
package alerts

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/quantfold/tip/internal/connector"
	"github.com/quantfold/tip/internal/schema"
)

var _ connector.Notifier = (*Notifier)(nil)

// severityThreshold is the floor below which events are not forwarded.
const severityThreshold = 80

const postTimeout = 10 * time.Second

// Notifier forwards qualifying events to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     *log.Logger
}

// Option configures optional notifier collaborators.
type Option func(*Notifier)

// WithHTTPClient overrides the webhook transport.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// WithLogger sets the delivery-failure logger. A nil logger silences it.
func WithLogger(l *log.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// New builds a notifier for the given webhook URL. An empty URL yields a
// disabled notifier that ignores every event.
func New(webhookURL string, opts ...Option) *Notifier {
	n := &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: postTimeout},
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.webhookURL != ""
}

// EventIngested posts the event to the webhook when it clears the severity
// threshold. Safe to call on a nil receiver.
func (n *Notifier) EventIngested(ctx context.Context, evt schema.EventV1) {
	if !n.Enabled() || evt.Severity < severityThreshold {
		return
	}
	msg := &slack.WebhookMessage{Text: renderText(evt)}
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, msg); err != nil {
		n.logf("alerts: slack post for event %s failed: %v", evt.EventID, err)
	}
}

func renderText(evt schema.EventV1) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s severity=%d", evt.Source, evt.EventType, evt.Severity)
	if evt.Symbol != "" {
		fmt.Fprintf(&b, " symbol=%s", evt.Symbol)
	}
	if !evt.TsEvent.IsZero() {
		fmt.Fprintf(&b, " at=%s", evt.TsEvent.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, " event=%s", evt.EventID)
	return b.String()
}

func (n *Notifier) logf(format string, args ...any) {
	if n.logger != nil {
		n.logger.Printf(format, args...)
	}
}
