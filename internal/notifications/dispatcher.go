package notifications

import (
	"context"
	"fmt"

	"biblio/internal/eventbus"
	"biblio/internal/middleware"
	"biblio/internal/observability"
)

// Dispatcher turns workflow events into e-mail. New-request events go to the
// library admin; decision events go to the requester, whose username is
// their address.
type Dispatcher struct {
	mailer     Mailer
	catalog    *TemplateCatalog
	adminEmail string
}

// NewDispatcher returns a Dispatcher sending through the given mailer.
func NewDispatcher(mailer Mailer, catalog *TemplateCatalog, adminEmail string) *Dispatcher {
	return &Dispatcher{mailer: mailer, catalog: catalog, adminEmail: adminEmail}
}

// Subscribe attaches the dispatcher to every workflow event on the bus.
func (d *Dispatcher) Subscribe(bus *eventbus.Bus) {
	bus.On(eventbus.RegistrationRequested, d.handle(eventbus.RegistrationRequested))
	bus.On(eventbus.RegistrationApproved, d.handle(eventbus.RegistrationApproved))
	bus.On(eventbus.RegistrationRejected, d.handle(eventbus.RegistrationRejected))
	bus.On(eventbus.DownloadLinkRequested, d.handle(eventbus.DownloadLinkRequested))
	bus.On(eventbus.DownloadLinkApproved, d.handle(eventbus.DownloadLinkApproved))
	bus.On(eventbus.DownloadLinkRejected, d.handle(eventbus.DownloadLinkRejected))
	bus.On(eventbus.PasswordResetRequested, d.handle(eventbus.PasswordResetRequested))
	bus.On(eventbus.PasswordResetCompleted, d.handle(eventbus.PasswordResetCompleted))
}

func (d *Dispatcher) handle(event eventbus.Event) eventbus.Handler {
	return func(ctx context.Context, payload any) error {
		if err := d.deliver(ctx, event, payload); err != nil {
			// notification failures never reach the emitter; log, count, move on
			observability.EmailsFailed.WithLabelValues(event.String()).Inc()
			middleware.Logger.ErrorContext(ctx, "notification delivery failed",
				"event", event.String(), "error", err.Error())
			return err
		}
		observability.EmailsSent.WithLabelValues(event.String()).Inc()
		return nil
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event eventbus.Event, payload any) error {
	to, err := d.recipient(event, payload)
	if err != nil {
		return err
	}

	subject, body, err := d.catalog.Render(event.String(), payload)
	if err != nil {
		return err
	}
	return d.mailer.Send(ctx, to, subject, body)
}

func (d *Dispatcher) recipient(event eventbus.Event, payload any) (string, error) {
	switch event {
	case eventbus.RegistrationRequested, eventbus.DownloadLinkRequested:
		return d.adminEmail, nil
	}

	switch p := payload.(type) {
	case eventbus.RegistrationApprovedPayload:
		return p.Username, nil
	case eventbus.RegistrationRejectedPayload:
		return p.Username, nil
	case eventbus.DownloadLinkApprovedPayload:
		return p.Username, nil
	case eventbus.DownloadLinkRejectedPayload:
		return p.Username, nil
	case eventbus.PasswordResetRequestedPayload:
		return p.Username, nil
	case eventbus.PasswordResetCompletedPayload:
		return p.Username, nil
	}
	return "", fmt.Errorf("event %s carried unexpected payload %T", event, payload)
}
