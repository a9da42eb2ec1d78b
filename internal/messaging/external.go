package messaging

import (
	"context"
	"fmt"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/events"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/session"
)

// Attach subscribes the poller to the widget's page events. The returned
// function unsubscribes.
func (p *Poller) Attach(bus events.Bus) func() {
	offOpen := bus.Subscribe(events.OpenMessagingWidget, func(ctx context.Context, e events.Event) {
		var d events.OpenMessagingWidgetDetail
		if err := e.Decode(&d); err != nil {
			p.log.LogError(ctx, "decode open event", err)
			return
		}
		if err := p.HandleOpen(ctx, d); err != nil {
			p.log.LogError(ctx, "open widget", err)
		}
	})
	offClose := bus.Subscribe(events.CloseMessagingWidget, func(ctx context.Context, _ events.Event) {
		p.Close(ctx)
	})
	return func() {
		offOpen()
		offClose()
	}
}

// HandleOpen forces the widget open. With a conversation or vendor id it
// lands in that chat after refreshing the list; a vendor with no existing
// conversation gets a new one. Otherwise it lands on the home screen.
func (p *Poller) HandleOpen(ctx context.Context, d events.OpenMessagingWidgetDetail) error {
	if d.ConversationID == nil && d.VendorProfileID == nil {
		return p.forceHome(ctx)
	}

	user, err := session.RequireUser(p.session)
	if err != nil {
		_ = events.Emit(ctx, p.bus, events.OpenSignIn, events.OpenSignInDetail{Reason: "message"})
		return err
	}
	if err := p.refresh(ctx); err != nil {
		p.log.LogError(ctx, "refresh before open", err)
	}

	conv, err := p.resolve(ctx, user.ID, d)
	if err != nil {
		_ = p.forceHome(ctx)
		return err
	}

	if err := p.transition(ctx, func(w *Widget) error {
		w.enterChat(conv, d.BookingInfo)
		return nil
	}); err != nil {
		return err
	}
	return p.loadMessages(ctx, conv.ID)
}

func (p *Poller) resolve(ctx context.Context, userID models.ID, d events.OpenMessagingWidgetDetail) (models.Conversation, error) {
	if d.ConversationID != nil {
		p.mu.Lock()
		conv, ok := p.findLocked(*d.ConversationID)
		p.mu.Unlock()
		if !ok {
			return models.Conversation{}, fmt.Errorf("%w: %s", ErrNoConversation, *d.ConversationID)
		}
		return conv, nil
	}

	vendorID := *d.VendorProfileID
	if conv, ok := p.findByVendor(vendorID); ok {
		return conv, nil
	}
	id, err := p.api.StartConversation(ctx, userID, vendorID)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("start conversation with vendor %s: %w", vendorID, err)
	}
	if err := p.refresh(ctx); err != nil {
		p.log.LogError(ctx, "refresh after start", err)
	}
	p.mu.Lock()
	conv, ok := p.findLocked(id)
	p.mu.Unlock()
	if ok {
		return conv, nil
	}
	return models.Conversation{
		ID:              id,
		OtherPartyName:  d.VendorName,
		OtherPartyType:  models.PartyVendor,
		VendorProfileID: models.IDPtr(vendorID),
	}, nil
}

// OpenSupport refreshes the list and forces the chat for a freshly created
// support conversation.
func (p *Poller) OpenSupport(ctx context.Context, id models.ID) error {
	if err := p.refresh(ctx); err != nil {
		p.log.LogError(ctx, "refresh after ticket", err)
	}
	p.mu.Lock()
	conv, ok := p.findLocked(id)
	p.mu.Unlock()
	if !ok {
		conv = models.Conversation{ID: id, OtherPartyName: "Support", OtherPartyType: models.PartyVendor}
	}
	if err := p.transition(ctx, func(w *Widget) error {
		w.enterChat(conv, nil)
		return nil
	}); err != nil {
		return err
	}
	return p.loadMessages(ctx, id)
}

func (p *Poller) forceHome(ctx context.Context) error {
	if err := p.transition(ctx, func(w *Widget) error {
		w.set(ViewHome)
		return nil
	}); err != nil {
		return err
	}
	p.refreshQuietly(ctx)
	return nil
}
