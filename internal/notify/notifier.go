// Package notify provides the best-effort notification sink for engine
// events. Delivery failures are logged and never propagate to callers.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reliefgrid/sos-engine/internal/domain"
)

// Notifier announces engine-driven state changes. All methods are
// fire-and-forget: implementations must swallow delivery errors.
type Notifier interface {
	NotifyEscalation(ctx context.Context, signal *domain.Signal, previousLevel, newLevel int, actor string)
	NotifyStatusUpdate(ctx context.Context, signal *domain.Signal, previousStatus, newStatus domain.SignalStatus, actor string)
	NotifyResponderAssignment(ctx context.Context, signal *domain.Signal, responderID, actor string)
}

// Message is a rendered notification handed to senders.
type Message struct {
	Subject string
	Body    string
}

// Sender delivers a rendered message to one transport.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher fans messages out to all configured senders inside its own
// error boundary.
type Dispatcher struct {
	senders []Sender
}

// NewDispatcher creates a dispatcher over the given senders.
func NewDispatcher(senders ...Sender) *Dispatcher {
	return &Dispatcher{senders: senders}
}

// NotifyEscalation announces an automatic escalation.
func (d *Dispatcher) NotifyEscalation(ctx context.Context, signal *domain.Signal, previousLevel, newLevel int, actor string) {
	msg := Message{
		Subject: fmt.Sprintf("SOS signal escalated to level %d", newLevel),
		Body: fmt.Sprintf(
			"Signal %s escalated from level %d to level %d by %s.\nPriority: %s\nLocation: %.4f, %.4f\nMessage: %s",
			signal.ID, previousLevel, newLevel, actor,
			signal.Priority, signal.Location.Lat, signal.Location.Lng, signal.Message,
		),
	}
	d.send(ctx, "escalation", msg)
}

// NotifyStatusUpdate announces a signal status change.
func (d *Dispatcher) NotifyStatusUpdate(ctx context.Context, signal *domain.Signal, previousStatus, newStatus domain.SignalStatus, actor string) {
	msg := Message{
		Subject: fmt.Sprintf("SOS signal status: %s", newStatus),
		Body: fmt.Sprintf(
			"Signal %s status changed from %s to %s by %s.",
			signal.ID, previousStatus, newStatus, actor,
		),
	}
	d.send(ctx, "status_update", msg)
}

// NotifyResponderAssignment announces a responder assignment.
func (d *Dispatcher) NotifyResponderAssignment(ctx context.Context, signal *domain.Signal, responderID, actor string) {
	msg := Message{
		Subject: "SOS signal responder assigned",
		Body: fmt.Sprintf(
			"Responder %s assigned to signal %s by %s.",
			responderID, signal.ID, actor,
		),
	}
	d.send(ctx, "responder_assignment", msg)
}

func (d *Dispatcher) send(ctx context.Context, kind string, msg Message) {
	for _, sender := range d.senders {
		if err := sender.Send(ctx, msg); err != nil {
			slog.Error("failed to send notification",
				"kind", kind,
				"sender", sender.Name(),
				"error", err,
			)
			recordNotification(sender.Name(), kind, "failed")
			continue
		}
		recordNotification(sender.Name(), kind, "success")
	}
}

// Nop is a Notifier that does nothing. Used when notifications are disabled.
type Nop struct{}

func (Nop) NotifyEscalation(context.Context, *domain.Signal, int, int, string) {}
func (Nop) NotifyStatusUpdate(context.Context, *domain.Signal, domain.SignalStatus, domain.SignalStatus, string) {
}
func (Nop) NotifyResponderAssignment(context.Context, *domain.Signal, string, string) {}
