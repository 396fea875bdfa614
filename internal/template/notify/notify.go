// Package notify announces processed templates on SNS, mails a summary to
// the administrators through SES and correlates a message to waiting
// onboarding processes in Zeebe.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"template-ingest/internal/common/errors"
	"template-ingest/internal/common/logger"
)

const (
	EventTemplateProcessed   = "template.processed"
	MessageTemplateProcessed = "template-processed"
)

type Publisher interface {
	PublishJSON(ctx context.Context, topicARN, eventType string, event interface{}) (string, error)
}

type EmailSender interface {
	SendText(ctx context.Context, from string, to []string, subject, body string) (string, error)
}

// ProcessMessenger is implemented by *camunda.Client.
type ProcessMessenger interface {
	PublishMessage(ctx context.Context, name, correlationKey string, variables map[string]interface{}) error
}

type Event struct {
	RunID         string    `json:"runId"`
	TemplateID    string    `json:"templateId"`
	AssetCount    int       `json:"assetCount"`
	PreviewImages []string  `json:"previewImages"`
	ProcessedBy   string    `json:"processedBy,omitempty"`
	ProcessedAt   time.Time `json:"processedAt"`
}

type Config struct {
	TopicARN        string
	FromEmail       string
	AdminRecipients []string
}

// Notifier sends to whichever channels are configured. A nil channel is skipped.
type Notifier struct {
	publisher Publisher
	email     EmailSender
	messenger ProcessMessenger
	config    Config
	logger    logger.Logger
}

func New(publisher Publisher, email EmailSender, cfg Config, log logger.Logger) *Notifier {
	return &Notifier{publisher: publisher, email: email, config: cfg, logger: log}
}

// WithProcessMessages also correlates every event to Zeebe, keyed by template id.
func (n *Notifier) WithProcessMessages(m ProcessMessenger) *Notifier {
	n.messenger = m
	return n
}

// Enabled reports whether any channel is configured.
func (n *Notifier) Enabled() bool {
	return (n.publisher != nil && n.config.TopicARN != "") ||
		(n.email != nil && n.config.FromEmail != "" && len(n.config.AdminRecipients) > 0) ||
		n.messenger != nil
}

// TemplateProcessed reports the first channel failure after trying all of them.
func (n *Notifier) TemplateProcessed(ctx context.Context, ev Event) error {
	var firstErr error

	if n.publisher != nil && n.config.TopicARN != "" {
		msgID, err := n.publisher.PublishJSON(ctx, n.config.TopicARN, EventTemplateProcessed, ev)
		if err != nil {
			firstErr = errors.NewNotificationSendFailedError("sns", err)
		} else {
			n.logger.Debug("Published template event", map[string]interface{}{
				"templateId": ev.TemplateID,
				"messageId":  msgID,
			})
		}
	}

	if n.email != nil && n.config.FromEmail != "" && len(n.config.AdminRecipients) > 0 {
		if _, err := n.email.SendText(ctx, n.config.FromEmail, n.config.AdminRecipients, subject(ev), body(ev)); err != nil && firstErr == nil {
			firstErr = errors.NewNotificationSendFailedError("ses", err)
		}
	}

	if n.messenger != nil {
		if err := n.messenger.PublishMessage(ctx, MessageTemplateProcessed, ev.TemplateID, map[string]interface{}{
			"runId":         ev.RunID,
			"assetCount":    ev.AssetCount,
			"previewImages": ev.PreviewImages,
		}); err != nil && firstErr == nil {
			firstErr = errors.NewNotificationSendFailedError("zeebe", err)
		}
	}

	return firstErr
}

func subject(ev Event) string {
	return fmt.Sprintf("Template %s processed", ev.TemplateID)
}

func body(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Template: %s\n", ev.TemplateID)
	fmt.Fprintf(&b, "Run: %s\n", ev.RunID)
	fmt.Fprintf(&b, "Assets relocated: %d\n", ev.AssetCount)
	if ev.ProcessedBy != "" {
		fmt.Fprintf(&b, "Uploaded by: %s\n", ev.ProcessedBy)
	}
	fmt.Fprintf(&b, "Processed at: %s\n", ev.ProcessedAt.UTC().Format(time.RFC3339))
	if len(ev.PreviewImages) > 0 {
		b.WriteString("\nPreview images:\n")
		for _, u := range ev.PreviewImages {
			b.WriteString("  " + u + "\n")
		}
	}
	return b.String()
}
