// Package events is the in-page publish/subscribe bus that components use to
// talk to each other: publish without acknowledgement, at-most-once delivery,
// no replay for late subscribers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"

	"github.com/google/uuid"
)

// Event names understood by the page.
const (
	OpenMessagingWidget   = "openMessagingWidget"
	CloseMessagingWidget  = "closeMessagingWidget"
	OpenDashboard         = "openDashboard"
	SharedComponentsReady = "sharedComponentsReady"
	OpenSignIn            = "openSignIn"
	InboxUpdated          = "inboxUpdated"

	// Wildcard subscribes to every event.
	Wildcard = "*"
)

// Event is a named page event with an optional JSON detail.
type Event struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Detail      json.RawMessage `json:"detail,omitempty"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// New builds an Event, encoding detail when non-nil.
func New(name string, detail any) (Event, error) {
	e := Event{ID: uuid.NewString(), Name: name, PublishedAt: time.Now().UTC()}
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s detail: %w", name, err)
		}
		e.Detail = raw
	}
	return e, nil
}

// Decode unmarshals the event detail into v. A missing detail leaves v untouched.
func (e Event) Decode(v any) error {
	if len(e.Detail) == 0 || string(e.Detail) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Detail, v); err != nil {
		return fmt.Errorf("decode %s detail: %w", e.Name, err)
	}
	return nil
}

// Handler receives delivered events.
type Handler func(ctx context.Context, e Event)

// Bus delivers page events to subscribers.
type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(name string, h Handler) (unsubscribe func())
}

// Emit builds and publishes an event in one call.
func Emit(ctx context.Context, b Bus, name string, detail any) error {
	if b == nil {
		return nil
	}
	e, err := New(name, detail)
	if err != nil {
		return err
	}
	return b.Publish(ctx, e)
}

// OpenMessagingWidgetDetail is the detail of OpenMessagingWidget.
type OpenMessagingWidgetDetail struct {
	ConversationID  *models.ID          `json:"conversationId,omitempty"`
	VendorProfileID *models.ID          `json:"vendorProfileId,omitempty"`
	VendorName      string              `json:"vendorName,omitempty"`
	ShowHome        bool                `json:"showHome,omitempty"`
	BookingInfo     *models.BookingInfo `json:"bookingInfo,omitempty"`
}

// OpenDashboardDetail is the detail of OpenDashboard.
type OpenDashboardDetail struct {
	Section string `json:"section,omitempty"`
}

// InboxUpdatedDetail is the detail of InboxUpdated, published when the
// unread total changes.
type InboxUpdatedDetail struct {
	Unread int `json:"unread"`
}

// OpenSignInDetail is the detail of OpenSignIn.
type OpenSignInDetail struct {
	Reason string `json:"reason,omitempty"`
}
