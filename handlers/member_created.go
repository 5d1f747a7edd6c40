// Package handlers contains the outbox handlers shipped with the module.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/quillpost/outbox"
)

// EventTypeMemberCreated is the event type the member-created handler is
// registered under.
const EventTypeMemberCreated = "MemberCreatedEvent"

// welcomeEmailSlugs maps a member status to the slug of the automated email
// that welcomes it. Statuses outside this map still get the generic welcome
// email, they just are not tracked against an automated email.
var welcomeEmailSlugs = map[string]string{
	"free": "welcome-free",
	"paid": "welcome-paid",
}

// MemberCreatedPayload carries the member fields captured when the member
// was created.
type MemberCreatedPayload struct {
	MemberID string `json:"memberId"`
	UUID     string `json:"uuid"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Status   string `json:"status"`
}

// WelcomeEmailSender sends the welcome email. This is the handler's primary
// side effect: its outcome decides whether the entry succeeds.
type WelcomeEmailSender interface {
	Send(ctx context.Context, payload MemberCreatedPayload) error
}

// AutomatedEmailStore records which automated email a member received.
type AutomatedEmailStore interface {
	// FindBySlug returns the id of the automated email with the given slug.
	FindBySlug(ctx context.Context, slug string) (string, error)
	// AddRecipient records that the member received the automated email.
	AddRecipient(ctx context.Context, automatedEmailID, memberID string) error
}

// MemberCreated sends a new member their welcome email and then records the
// send. The send is the primary action; the recording is best-effort
// bookkeeping. A bookkeeping failure is logged and swallowed, because
// failing the entry would retry the handler and resend an email that was
// already delivered.
type MemberCreated struct {
	mailer WelcomeEmailSender
	emails AutomatedEmailStore
	logger *zap.Logger
}

// NewMemberCreated creates the member-created handler.
func NewMemberCreated(mailer WelcomeEmailSender, emails AutomatedEmailStore, logger *zap.Logger) *MemberCreated {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemberCreated{
		mailer: mailer,
		emails: emails,
		logger: logger,
	}
}

// Handle implements outbox.Handler.
func (h *MemberCreated) Handle(ctx context.Context, entry outbox.Entry) error {
	var payload MemberCreatedPayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode member created payload: %w", err)
	}

	if err := h.mailer.Send(ctx, payload); err != nil {
		return fmt.Errorf("failed to send welcome email: %w", err)
	}

	slug, ok := welcomeEmailSlugs[payload.Status]
	if !ok {
		h.logger.Warn("No welcome email slug for member status",
			zap.String("event", "outbox.member_created.no_slug_mapping"),
			zap.String("member_status", payload.Status))
		return nil
	}

	if err := h.trackSend(ctx, slug, payload.MemberID); err != nil {
		// The email already went out. Losing the bookkeeping row is the
		// lesser evil compared to resending it on retry.
		h.logger.Error("Failed to record welcome email send",
			zap.String("event", "outbox.member_created.track_send_failed"),
			zap.String("member_id", payload.MemberID),
			zap.String("slug", slug),
			zap.Error(err))
	}
	return nil
}

func (h *MemberCreated) trackSend(ctx context.Context, slug, memberID string) error {
	automatedEmailID, err := h.emails.FindBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("failed to find automated email %q: %w", slug, err)
	}
	if err := h.emails.AddRecipient(ctx, automatedEmailID, memberID); err != nil {
		return fmt.Errorf("failed to add recipient: %w", err)
	}
	return nil
}
