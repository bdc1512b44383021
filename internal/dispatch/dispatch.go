// Package dispatch delivers rendered change notifications to the
// group destination and to every registered subscriber, isolating each
// recipient's failures and pruning recipients that can no longer
// receive messages.
package dispatch

import (
	"errors"

	"github.com/vnmetals/silverwatch/internal/logger"
	"github.com/vnmetals/silverwatch/internal/models"
	"github.com/vnmetals/silverwatch/internal/registry"
	"github.com/vnmetals/silverwatch/internal/render"
)

// ErrRecipientUnreachable marks a delivery failure that will never
// succeed for this recipient: the chat is gone or the bot was blocked.
// Senders wrap their transport errors with it; any other error is
// treated as transient.
var ErrRecipientUnreachable = errors.New("recipient unreachable")

// Sender delivers one text message to one chat.
type Sender interface {
	SendTo(chatID int64, text string) error
}

// Auditor records dispatched changes for operator inspection.
type Auditor interface {
	RecordNotification(change models.ChangeRecord, recipients int) error
}

// RenderFunc turns a change batch into the outbound message text.
type RenderFunc func([]models.ChangeRecord) string

// Dispatcher fans a change batch out to the group chat and each
// subscriber.
type Dispatcher struct {
	sender   Sender
	registry *registry.Registry
	groupID  int64
	render   RenderFunc
	audit    Auditor
}

// New creates a dispatcher with the default change-alert renderer.
func New(sender Sender, reg *registry.Registry, groupID int64) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		registry: reg,
		groupID:  groupID,
		render:   render.ChangeAlert,
	}
}

// SetRenderer swaps the message renderer.
func (d *Dispatcher) SetRenderer(r RenderFunc) {
	if r != nil {
		d.render = r
	}
}

// SetAuditor enables the notification audit log.
func (d *Dispatcher) SetAuditor(a Auditor) {
	d.audit = a
}

// Dispatch renders the change batch once and attempts delivery to the
// group first, then to every subscriber independently. Group failure
// is logged and never aborts subscriber delivery. A subscriber whose
// delivery fails with ErrRecipientUnreachable is queued for removal;
// the queued removals are applied and persisted once after the loop.
// Transient failures retain the subscriber; there is no retry within
// the cycle.
func (d *Dispatcher) Dispatch(changes []models.ChangeRecord) models.DeliveryReport {
	if len(changes) == 0 {
		return models.DeliveryReport{}
	}

	report := d.Broadcast(d.render(changes))

	if d.audit != nil {
		for _, c := range changes {
			if err := d.audit.RecordNotification(c, report.Delivered); err != nil {
				logger.Warn("Failed to record notification for %q: %v", c.ProductName, err)
			}
		}
	}

	logger.Info("Dispatched %d change(s): group=%t delivered=%d transient=%d pruned=%d",
		len(changes), report.GroupDelivered, report.Delivered, report.TransientFailures, len(report.Removed))
	return report
}

// Broadcast delivers one already-rendered message to the group and to
// every subscriber, with the same per-recipient failure isolation and
// pruning as Dispatch. Used for the fixed-time notifications, which
// carry text that is not a change batch.
func (d *Dispatcher) Broadcast(text string) models.DeliveryReport {
	var report models.DeliveryReport

	if err := d.sender.SendTo(d.groupID, text); err != nil {
		logger.Error("Failed to deliver to group %d: %v", d.groupID, err)
	} else {
		report.GroupDelivered = true
	}

	subscribers := d.registry.Snapshot()
	var unreachable []int64
	for _, id := range subscribers {
		err := d.sender.SendTo(id, text)
		switch {
		case err == nil:
			report.Delivered++
		case errors.Is(err, ErrRecipientUnreachable):
			logger.Info("Subscriber %d unreachable, pruning: %v", id, err)
			unreachable = append(unreachable, id)
		default:
			logger.Warn("Transient delivery failure for subscriber %d: %v", id, err)
			report.TransientFailures++
		}
	}

	d.registry.RemoveBatch(unreachable)
	report.Removed = unreachable
	return report
}
