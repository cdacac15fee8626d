/*
transport.go - External collaborator interfaces

PURPOSE:
  The engine consumes, and never implements, the messaging provider and
  the operator notification channel. These narrow interfaces keep both
  injectable: tests use fakes, dev mode uses the log-backed versions
  here, production wires a real provider adapter.

TIMEOUTS:
  Dispatch happens under a bounded context (scheduler's DispatchTimeout).
  A send that does not resolve in time is a failure for counting
  purposes - the contact stays uncontacted and re-candidates later.

SEE ALSO:
  - errors.go: TransportError
  - api/scheduler.go: dispatch loop and notification emission
*/
package campaign

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// MessageTransport sends one SMS. Implementations must honor ctx
// cancellation and return a provider message id on success.
type MessageTransport interface {
	Send(ctx context.Context, phone PhoneNumber, text string) (messageID string, err error)
}

// NotificationSink receives winner announcements. Fire-and-forget:
// failures are logged by the caller and never block the state machine.
type NotificationSink interface {
	Notify(ctx context.Context, summary WinnerSummary) error
}

// =============================================================================
// LOG-BACKED IMPLEMENTATIONS - dev mode / fallback
// =============================================================================

// LogTransport "sends" by logging. Useful for local runs without a
// provider account.
type LogTransport struct{}

func (LogTransport) Send(_ context.Context, phone PhoneNumber, text string) (string, error) {
	id := "log-" + uuid.NewString()
	log.Printf("[Transport] -> %s: %q (message_id=%s)", phone, text, id)
	return id, nil
}

// LogNotifier announces winners to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, summary WinnerSummary) error {
	log.Printf("[Notify] %s", summary)
	return nil
}
