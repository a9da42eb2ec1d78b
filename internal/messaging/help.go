package messaging

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/session"
)

// HelpCenter serves the widget's help screen: FAQs, feedback on answers and
// support tickets.
type HelpCenter struct {
	api     API
	session session.Provider
	poller  *Poller
}

// NewHelpCenter creates a HelpCenter. Tickets open in poller's chat.
func NewHelpCenter(client API, sess session.Provider, poller *Poller) *HelpCenter {
	return &HelpCenter{api: client, session: sess, poller: poller}
}

// FAQQuery narrows the FAQ list. Empty fields match everything.
type FAQQuery struct {
	Category string
	Search   string
}

// FAQs fetches the FAQ list and filters it client-side.
func (h *HelpCenter) FAQs(ctx context.Context, q FAQQuery) ([]models.FAQ, error) {
	all, err := h.api.ListFAQs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list faqs: %w", err)
	}
	return FilterFAQs(all, q), nil
}

// FilterFAQs applies q to faqs, keeping order.
func FilterFAQs(faqs []models.FAQ, q FAQQuery) []models.FAQ {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]models.FAQ, 0, len(faqs))
	for _, f := range faqs {
		if q.Category != "" && !strings.EqualFold(f.Category, q.Category) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(f.Question), search) &&
			!strings.Contains(strings.ToLower(f.Answer), search) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Categories lists the distinct FAQ categories, sorted.
func Categories(faqs []models.FAQ) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range faqs {
		if f.Category == "" {
			continue
		}
		if _, ok := seen[f.Category]; ok {
			continue
		}
		seen[f.Category] = struct{}{}
		out = append(out, f.Category)
	}
	sort.Strings(out)
	return out
}

// Feedback records whether an answer helped. Anonymous feedback is allowed.
func (h *HelpCenter) Feedback(ctx context.Context, faqID models.ID, helpful bool) error {
	var userID models.ID
	if u, err := session.RequireUser(h.session); err == nil {
		userID = u.ID
	}
	if err := h.api.SendFAQFeedback(ctx, faqID, userID, helpful); err != nil {
		return fmt.Errorf("faq feedback: %w", err)
	}
	return nil
}

// SubmitTicket opens a support conversation and shows it in the chat.
func (h *HelpCenter) SubmitTicket(ctx context.Context, t models.SupportTicket) (models.ID, error) {
	user, err := session.RequireUser(h.session)
	if err != nil {
		return "", err
	}
	t.Subject = strings.TrimSpace(t.Subject)
	t.Description = strings.TrimSpace(t.Description)
	if t.Subject == "" || t.Description == "" {
		return "", models.NewValidationError("subject and description are required")
	}
	if t.Category == "" {
		t.Category = "general"
	}

	id, err := h.api.CreateSupportConversation(ctx, user.ID, t)
	if err != nil {
		return "", fmt.Errorf("submit ticket: %w", err)
	}
	if h.poller != nil {
		if err := h.poller.OpenSupport(ctx, id); err != nil {
			return id, err
		}
	}
	return id, nil
}
