package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/api"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/session"
)

type fakeAPI struct {
	mu            sync.Mutex
	conversations []models.Conversation
	messages      map[models.ID][]models.Message
	listErr       error
	calls         []string
	sent          []api.OutgoingMessage
	startID       models.ID
	faqs          []models.FAQ
	feedback      map[models.ID]bool
	tickets       []models.SupportTicket
	beforeList    func()
}

func newFakeAPI(convs ...models.Conversation) *fakeAPI {
	return &fakeAPI{
		conversations: convs,
		messages:      make(map[models.ID][]models.Message),
		feedback:      make(map[models.ID]bool),
	}
}

func (f *fakeAPI) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeAPI) setConversations(convs ...models.Conversation) {
	f.mu.Lock()
	f.conversations = convs
	f.mu.Unlock()
}

func (f *fakeAPI) setListErr(err error) {
	f.mu.Lock()
	f.listErr = err
	f.mu.Unlock()
}

func (f *fakeAPI) ListConversations(_ context.Context, userID models.ID) ([]models.Conversation, error) {
	if f.beforeList != nil {
		f.beforeList()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list:" + userID.String())
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Conversation(nil), f.conversations...), nil
}

func (f *fakeAPI) GetMessages(_ context.Context, id models.ID) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("messages:" + id.String())
	return append([]models.Message(nil), f.messages[id]...), nil
}

func (f *fakeAPI) SendMessage(_ context.Context, in api.OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("send")
	f.sent = append(f.sent, in)
	f.messages[in.ConversationID] = append(f.messages[in.ConversationID], models.Message{
		ID:             models.ID("m" + in.Content),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		CreatedAt:      time.Now(),
	})
	return nil
}

func (f *fakeAPI) StartConversation(_ context.Context, _, vendorProfileID models.ID) (models.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start:" + vendorProfileID.String())
	vp := vendorProfileID
	f.conversations = append(f.conversations, models.Conversation{
		ID:              f.startID,
		OtherPartyName:  "New Vendor",
		OtherPartyType:  models.PartyVendor,
		VendorProfileID: &vp,
	})
	return f.startID, nil
}

func (f *fakeAPI) CreateSupportConversation(_ context.Context, _ models.ID, t models.SupportTicket) (models.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("support")
	f.tickets = append(f.tickets, t)
	return "support-1", nil
}

func (f *fakeAPI) ListFAQs(context.Context) ([]models.FAQ, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("faqs")
	return f.faqs, nil
}

func (f *fakeAPI) SendFAQFeedback(_ context.Context, faqID, _ models.ID, helpful bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("feedback")
	f.feedback[faqID] = helpful
	return nil
}

func signedIn() *session.Store {
	store := session.NewStore()
	store.Set("tok", &models.User{ID: "42", FirstName: "Ada"})
	return store
}

func conv(id string, unread int, party models.PartyType, name string) models.Conversation {
	return models.Conversation{ID: models.ID(id), UnreadCount: unread, OtherPartyType: party, OtherPartyName: name}
}

type fakeTicker struct {
	interval time.Duration
	c        chan time.Time
	mu       sync.Mutex
	stopped  bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.c }

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeTicker) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}
