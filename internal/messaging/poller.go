package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/api"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/events"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/observability"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/session"
)

// Role selects which side of the marketplace the inbox shows.
type Role string

const (
	// RoleClient shows conversations with vendors.
	RoleClient Role = "client"
	// RoleVendor shows conversations with clients.
	RoleVendor Role = "vendor"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleClient:
		return RoleClient, true
	case RoleVendor:
		return RoleVendor, true
	}
	return "", false
}

// counterpart is the party type shown for a role.
func (r Role) counterpart() models.PartyType {
	if r == RoleVendor {
		return models.PartyUser
	}
	return models.PartyVendor
}

// Intervals is the polling cadence per widget phase.
type Intervals struct {
	Closed time.Duration
	Open   time.Duration
}

// DefaultIntervals keeps the unread badge current while closed and the open
// screens reasonably fresh.
var DefaultIntervals = Intervals{Closed: 30 * time.Second, Open: 10 * time.Second}

// API is the subset of the backend client used by messaging.
type API interface {
	ListConversations(ctx context.Context, userID models.ID) ([]models.Conversation, error)
	GetMessages(ctx context.Context, conversationID models.ID) ([]models.Message, error)
	SendMessage(ctx context.Context, in api.OutgoingMessage) error
	StartConversation(ctx context.Context, userID, vendorProfileID models.ID) (models.ID, error)
	CreateSupportConversation(ctx context.Context, userID models.ID, ticket models.SupportTicket) (models.ID, error)
	ListFAQs(ctx context.Context) ([]models.FAQ, error)
	SendFAQFeedback(ctx context.Context, faqID, userID models.ID, helpful bool) error
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.Ticker.C }

func newTimeTicker(d time.Duration) ticker { return timeTicker{time.NewTicker(d)} }

// Poller owns the inbox state and the widget. Every fetch replaces local
// state wholesale; responses are applied in arrival order.
type Poller struct {
	api       API
	session   session.Provider
	bus       events.Bus
	intervals Intervals
	log       *observability.PollLogger
	newTicker func(time.Duration) ticker

	mu            sync.Mutex
	widget        Widget
	role          Role
	conversations []models.Conversation
	messages      []models.Message
	unread        int
	listeners     []func(Snapshot)

	reschedule chan struct{}
}

// Option configures a Poller.
type Option func(*Poller)

// WithIntervals overrides the polling cadence. Zero fields keep the default.
func WithIntervals(iv Intervals) Option {
	return func(p *Poller) {
		if iv.Closed > 0 {
			p.intervals.Closed = iv.Closed
		}
		if iv.Open > 0 {
			p.intervals.Open = iv.Open
		}
	}
}

// WithRole sets the initial inbox role.
func WithRole(r Role) Option {
	return func(p *Poller) { p.role = r }
}

// WithBus sets the page event bus used for sign-in prompts and inbox updates.
func WithBus(b events.Bus) Option {
	return func(p *Poller) { p.bus = b }
}

// NewPoller creates a Poller in the closed state with the client role.
func NewPoller(client API, sess session.Provider, opts ...Option) *Poller {
	p := &Poller{
		api:        client,
		session:    sess,
		intervals:  DefaultIntervals,
		log:        observability.NewPollLogger("inbox"),
		newTicker:  newTimeTicker,
		role:       RoleClient,
		reschedule: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval is the polling period for the current widget phase.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intervalLocked()
}

func (p *Poller) intervalLocked() time.Duration {
	if p.widget.IsOpen() {
		return p.intervals.Open
	}
	return p.intervals.Closed
}

func phase(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}

// Run polls until ctx is cancelled. The ticker is replaced whenever the
// widget moves between closed and open.
func (p *Poller) Run(ctx context.Context) error {
	_ = p.Tick(ctx)
	for {
		t := p.newTicker(p.Interval())
		if done := p.loop(ctx, t); done {
			t.Stop()
			return nil
		}
		t.Stop()
	}
}

// loop ticks until a reschedule (false) or cancellation (true).
func (p *Poller) loop(ctx context.Context, t ticker) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case <-p.reschedule:
			return false
		case <-t.C():
			_ = p.Tick(ctx)
		}
	}
}

// Tick fetches the conversation list and, in the chat view, the active
// conversation's messages. Failures are logged and leave the last applied
// state in place. Without a session there is nothing to poll.
func (p *Poller) Tick(ctx context.Context) error {
	user, err := session.RequireUser(p.session)
	if err != nil {
		return nil
	}

	p.mu.Lock()
	open := p.widget.IsOpen()
	active := p.widget.Active()
	p.mu.Unlock()

	ctx, span := observability.GetTraceLayer().TracePoll(ctx, "inbox", phase(open))
	defer span.End()

	if err := p.refreshConversations(ctx, user.ID); err != nil {
		observability.RecordSpanError(span, err)
		return err
	}
	if active != nil {
		if err := p.refreshMessages(ctx, active.ID); err != nil {
			observability.RecordSpanError(span, err)
			return err
		}
	}
	observability.PollTicks.WithLabelValues(phase(open)).Inc()
	p.log.LogTick(ctx, phase(open), map[string]interface{}{"unread": p.UnreadCount()})
	p.notify()
	return nil
}

func (p *Poller) refreshConversations(ctx context.Context, userID models.ID) error {
	convs, err := p.api.ListConversations(ctx, userID)
	if err != nil {
		observability.PollErrors.WithLabelValues("conversations").Inc()
		p.log.LogError(ctx, "conversations", err)
		return fmt.Errorf("list conversations: %w", err)
	}

	// A response for a viewer who has since signed out or switched is dropped.
	if current, err := session.RequireUser(p.session); err != nil || current.ID != userID {
		return nil
	}

	unread := 0
	for _, c := range convs {
		unread += c.UnreadCount
	}

	p.mu.Lock()
	p.conversations = convs
	changed := p.unread != unread
	p.unread = unread
	p.mu.Unlock()
	observability.UnreadMessages.Set(float64(unread))
	if changed {
		p.announceUnread(ctx, unread)
	}
	return nil
}

// announceUnread tells the rest of the page, such as the header badge, about
// a new unread total.
func (p *Poller) announceUnread(ctx context.Context, unread int) {
	if p.bus == nil {
		return
	}
	if err := events.Emit(ctx, p.bus, events.InboxUpdated, events.InboxUpdatedDetail{Unread: unread}); err != nil {
		p.log.LogError(ctx, "announce unread", err)
	}
}

// refreshMessages replaces the message list if id is still the open conversation.
func (p *Poller) refreshMessages(ctx context.Context, id models.ID) error {
	msgs, err := p.api.GetMessages(ctx, id)
	if err != nil {
		observability.PollErrors.WithLabelValues("messages").Inc()
		p.log.LogError(ctx, "messages", err)
		return fmt.Errorf("get messages for %s: %w", id, err)
	}
	p.mu.Lock()
	if a := p.widget.active; a != nil && a.ID == id {
		p.messages = msgs
	}
	p.mu.Unlock()
	return nil
}

// refresh fetches the list for the signed-in viewer.
func (p *Poller) refresh(ctx context.Context) error {
	user, err := session.RequireUser(p.session)
	if err != nil {
		return err
	}
	return p.refreshConversations(ctx, user.ID)
}

// SessionChanged follows the viewer. Signing out empties the inbox and closes
// the widget; signing in fetches the new viewer's conversations right away.
func (p *Poller) SessionChanged(ctx context.Context, user *models.User) {
	if user == nil || user.ID.IsZero() {
		p.mu.Lock()
		p.conversations = nil
		p.messages = nil
		changed := p.unread != 0
		p.unread = 0
		p.mu.Unlock()
		observability.UnreadMessages.Set(0)
		if changed {
			p.announceUnread(ctx, 0)
		}
		p.Close(ctx)
		return
	}
	p.refreshQuietly(ctx)
}

// UnreadCount is the sum of unread counts in the last applied list.
func (p *Poller) UnreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unread
}

// OnUpdate registers fn to receive a snapshot after every applied poll and
// every widget change.
func (p *Poller) OnUpdate(fn func(Snapshot)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

func (p *Poller) notify() {
	p.mu.Lock()
	listeners := append([]func(Snapshot){}, p.listeners...)
	snap := p.snapshotLocked(p.role)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

// transition applies fn to the widget under the lock, logs the change and
// reschedules polling when the widget opened or closed.
func (p *Poller) transition(ctx context.Context, fn func(w *Widget) error) error {
	p.mu.Lock()
	from := p.widget.View()
	wasOpen := p.widget.IsOpen()
	prev := activeID(&p.widget)
	err := fn(&p.widget)
	to := p.widget.View()
	if activeID(&p.widget) != prev {
		p.messages = nil
	}
	isOpen := p.widget.IsOpen()
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if from != to {
		p.log.LogTransition(ctx, from.String(), to.String())
	}
	if wasOpen != isOpen {
		select {
		case p.reschedule <- struct{}{}:
		default:
		}
	}
	p.notify()
	return nil
}

// Toggle opens or closes the widget. Opening refreshes the conversation list.
func (p *Poller) Toggle(ctx context.Context) View {
	var view View
	_ = p.transition(ctx, func(w *Widget) error {
		view = w.Toggle()
		return nil
	})
	if view != ViewClosed {
		p.refreshQuietly(ctx)
	}
	return view
}

// Close closes the widget.
func (p *Poller) Close(ctx context.Context) {
	_ = p.transition(ctx, func(w *Widget) error {
		w.Close()
		return nil
	})
}

// SelectTab switches the bottom-navigation tab. The messages tab refreshes
// the conversation list.
func (p *Poller) SelectTab(ctx context.Context, tab View) error {
	if err := p.transition(ctx, func(w *Widget) error { return w.SelectTab(tab) }); err != nil {
		return err
	}
	if tab == ViewMessagesList {
		p.refreshQuietly(ctx)
	}
	return nil
}

// OpenConversation enters the chat for a conversation in the current list
// and fetches its messages.
func (p *Poller) OpenConversation(ctx context.Context, id models.ID) error {
	err := p.transition(ctx, func(w *Widget) error {
		conv, ok := p.findLocked(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoConversation, id)
		}
		return w.OpenConversation(conv)
	})
	if err != nil {
		return err
	}
	return p.loadMessages(ctx, id)
}

// Back navigates back. Leaving the chat refreshes the conversation list.
func (p *Poller) Back(ctx context.Context) error {
	var fromChat bool
	err := p.transition(ctx, func(w *Widget) error {
		fromChat = w.View() == ViewChat
		return w.Back()
	})
	if err != nil {
		return err
	}
	if fromChat {
		p.refreshQuietly(ctx)
	}
	return nil
}

// Send posts content to the open conversation and then refetches its
// messages rather than appending locally.
func (p *Poller) Send(ctx context.Context, content string) error {
	user, err := session.RequireUser(p.session)
	if err != nil {
		return err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return models.NewValidationError("message cannot be empty")
	}
	p.mu.Lock()
	active := p.widget.Active()
	p.mu.Unlock()
	if active == nil {
		return fmt.Errorf("%w: no open conversation", ErrNoConversation)
	}

	if err := p.api.SendMessage(ctx, api.OutgoingMessage{
		ConversationID: active.ID,
		SenderID:       user.ID,
		Content:        content,
	}); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return p.loadMessages(ctx, active.ID)
}

// SetRole switches the inbox between client and vendor conversations. It
// only changes local filtering.
func (p *Poller) SetRole(r Role) error {
	if r != RoleClient && r != RoleVendor {
		return models.NewValidationError(fmt.Sprintf("unknown role %q", r))
	}
	p.mu.Lock()
	p.role = r
	p.mu.Unlock()
	p.notify()
	return nil
}

// Snapshot returns a copy of the current inbox as shown for the active role.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked(p.role)
}

// SnapshotAs is Snapshot filtered for r without changing the active role.
func (p *Poller) SnapshotAs(r Role) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked(r)
}

func (p *Poller) snapshotLocked(role Role) Snapshot {
	shown := make([]models.Conversation, 0, len(p.conversations))
	want := role.counterpart()
	for _, c := range p.conversations {
		if c.OtherPartyType == want {
			shown = append(shown, c)
		}
	}
	return Snapshot{
		View:          p.widget.View(),
		Role:          role,
		Unread:        p.unread,
		Conversations: shown,
		Active:        p.widget.Active(),
		Messages:      append([]models.Message(nil), p.messages...),
		Booking:       p.widget.Booking(),
	}
}

func activeID(w *Widget) models.ID {
	if w.active == nil {
		return ""
	}
	return w.active.ID
}

func (p *Poller) findLocked(id models.ID) (models.Conversation, bool) {
	for _, c := range p.conversations {
		if c.ID == id {
			return c, true
		}
	}
	return models.Conversation{}, false
}

func (p *Poller) findByVendor(vendorProfileID models.ID) (models.Conversation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conversations {
		if c.VendorProfileID != nil && *c.VendorProfileID == vendorProfileID {
			return c, true
		}
	}
	return models.Conversation{}, false
}

func (p *Poller) loadMessages(ctx context.Context, id models.ID) error {
	err := p.refreshMessages(ctx, id)
	p.notify()
	return err
}

// refreshQuietly refreshes the list on navigation. Failures are already
// logged and the previous list stays on screen.
func (p *Poller) refreshQuietly(ctx context.Context) {
	if err := p.refresh(ctx); err == nil {
		p.notify()
	}
}

// Snapshot is a point-in-time copy of the inbox.
type Snapshot struct {
	View          View                  `json:"view"`
	Role          Role                  `json:"role"`
	Unread        int                   `json:"unread"`
	Conversations []models.Conversation `json:"conversations"`
	Active        *models.Conversation  `json:"active,omitempty"`
	Messages      []models.Message      `json:"messages"`
	Booking       *models.BookingInfo   `json:"booking,omitempty"`
}

// Filter narrows the conversations to those whose party name or last
// message contains query, ignoring case.
func (s Snapshot) Filter(query string) Snapshot {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s
	}
	out := make([]models.Conversation, 0, len(s.Conversations))
	for _, c := range s.Conversations {
		if strings.Contains(strings.ToLower(c.OtherPartyName), q) ||
			strings.Contains(strings.ToLower(c.LastMessageContent), q) {
			out = append(out, c)
		}
	}
	s.Conversations = out
	return s
}
