// Package notify alerts operators about dead-lettered work.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Notifier delivers an operator alert. Failures are logged and swallowed
// by callers; alerting never blocks the pipeline.
type Notifier interface {
	DeadLetterAlert(ctx context.Context, resumeID uuid.UUID, attempts int, reason string) error
}

// SMSNotifier sends alerts through Twilio.
type SMSNotifier struct {
	client *twilio.RestClient
	from   string
	to     string
	logger *slog.Logger
}

func NewSMSNotifier(accountSID, authToken, from, to string, logger *slog.Logger) *SMSNotifier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &SMSNotifier{client: client, from: from, to: to, logger: logger}
}

func (n *SMSNotifier) DeadLetterAlert(ctx context.Context, resumeID uuid.UUID, attempts int, reason string) error {
	body := fmt.Sprintf("talentsift: resume %s dead-lettered after %d attempts: %s", resumeID, attempts, reason)
	params := &twilioApi.CreateMessageParams{
		To:   &n.to,
		From: &n.from,
		Body: &body,
	}
	message, err := n.client.Api.CreateMessage(params)
	if err != nil {
		n.logger.Error("Failed to send SMS alert",
			slog.String("error", err.Error()),
			slog.String("to", n.to))
		return fmt.Errorf("failed to send SMS alert: %w", err)
	}
	n.logger.Info("dead-letter alert sent",
		slog.String("resume_id", resumeID.String()),
		slog.String("message_sid", *message.Sid))
	return nil
}

// NoopNotifier is used when Twilio credentials are absent.
type NoopNotifier struct{}

func (NoopNotifier) DeadLetterAlert(ctx context.Context, resumeID uuid.UUID, attempts int, reason string) error {
	return nil
}

// RecordingNotifier captures alerts for test assertions.
type RecordingNotifier struct {
	Alerts []string
}

func (n *RecordingNotifier) DeadLetterAlert(ctx context.Context, resumeID uuid.UUID, attempts int, reason string) error {
	n.Alerts = append(n.Alerts, fmt.Sprintf("%s attempts=%d %s", resumeID, attempts, reason))
	return nil
}
