// Package messaging keeps the viewer's inbox fresh by polling and drives the
// floating messaging widget's view state.
package messaging

import (
	"errors"
	"fmt"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
)

var (
	// ErrIllegalTransition is returned when a widget action is not allowed
	// from the current view.
	ErrIllegalTransition = errors.New("illegal widget transition")
	// ErrNoConversation is returned when an action needs a conversation that
	// is not known or not open.
	ErrNoConversation = errors.New("conversation not found")
)

// View is the widget's current screen.
type View int

const (
	ViewClosed View = iota
	ViewHome
	ViewMessagesList
	ViewChat
	ViewHelp
)

var viewNames = [...]string{
	ViewClosed:       "closed",
	ViewHome:         "home",
	ViewMessagesList: "messages",
	ViewChat:         "chat",
	ViewHelp:         "help",
}

func (v View) String() string {
	if v < 0 || int(v) >= len(viewNames) {
		return fmt.Sprintf("View(%d)", int(v))
	}
	return viewNames[v]
}

// MarshalText encodes the view by name.
func (v View) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText decodes a view name written by MarshalText.
func (v *View) UnmarshalText(text []byte) error {
	for i, name := range viewNames {
		if name == string(text) {
			*v = View(i)
			return nil
		}
	}
	return fmt.Errorf("unknown widget view %q", text)
}

// ParseTab maps a bottom-navigation tab name to its view.
func ParseTab(s string) (View, bool) {
	switch s {
	case "home":
		return ViewHome, true
	case "messages", "messagesList":
		return ViewMessagesList, true
	case "help":
		return ViewHelp, true
	}
	return ViewClosed, false
}

// Widget is the view state machine. The active conversation is set exactly
// when the view is ViewChat. Widget is not safe for concurrent use; Poller
// guards it.
type Widget struct {
	view    View
	active  *models.Conversation
	booking *models.BookingInfo
}

// View returns the current view.
func (w *Widget) View() View { return w.view }

// IsOpen reports whether the widget is showing any screen.
func (w *Widget) IsOpen() bool { return w.view != ViewClosed }

// Active returns the open conversation, or nil outside ViewChat.
func (w *Widget) Active() *models.Conversation {
	if w.active == nil {
		return nil
	}
	c := *w.active
	return &c
}

// Booking returns the booking banner shown in the chat, if any.
func (w *Widget) Booking() *models.BookingInfo {
	if w.booking == nil {
		return nil
	}
	b := *w.booking
	return &b
}

// Toggle opens a closed widget on the home screen or closes an open one.
func (w *Widget) Toggle() View {
	if w.IsOpen() {
		w.Close()
	} else {
		w.set(ViewHome)
	}
	return w.view
}

// Close closes the widget from any view.
func (w *Widget) Close() {
	w.set(ViewClosed)
}

// SelectTab switches between the home, messages and help screens.
func (w *Widget) SelectTab(tab View) error {
	if !w.IsOpen() {
		return fmt.Errorf("%w: select %s while closed", ErrIllegalTransition, tab)
	}
	switch tab {
	case ViewHome, ViewMessagesList, ViewHelp:
		w.set(tab)
		return nil
	}
	return fmt.Errorf("%w: %s is not a tab", ErrIllegalTransition, tab)
}

// OpenConversation enters the chat for conv from the home or messages screen.
func (w *Widget) OpenConversation(conv models.Conversation) error {
	if w.view != ViewHome && w.view != ViewMessagesList {
		return fmt.Errorf("%w: open conversation from %s", ErrIllegalTransition, w.view)
	}
	w.enterChat(conv, nil)
	return nil
}

// Back leaves the chat for the messages list, or returns to home from the
// other screens.
func (w *Widget) Back() error {
	switch w.view {
	case ViewChat:
		w.set(ViewMessagesList)
	case ViewMessagesList, ViewHelp:
		w.set(ViewHome)
	default:
		return fmt.Errorf("%w: back from %s", ErrIllegalTransition, w.view)
	}
	return nil
}

// enterChat forces the chat view from any state. Page events and support
// tickets use it directly.
func (w *Widget) enterChat(conv models.Conversation, booking *models.BookingInfo) {
	c := conv
	w.view = ViewChat
	w.active = &c
	w.booking = booking
}

func (w *Widget) set(v View) {
	w.view = v
	if v != ViewChat {
		w.active = nil
		w.booking = nil
	}
}
