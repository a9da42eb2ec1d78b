package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
)

// OutgoingMessage is the payload for POST /messages.
type OutgoingMessage struct {
	ConversationID models.ID `json:"conversationId"`
	SenderID       models.ID `json:"senderId"`
	Content        string    `json:"content"`
}

// ListConversations calls GET /messages/conversations/user/{id}.
func (c *Client) ListConversations(ctx context.Context, userID models.ID) ([]models.Conversation, error) {
	var out struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	path := "/messages/conversations/user/" + url.PathEscape(userID.String())
	if err := c.do(ctx, http.MethodGet, "/messages/conversations/user/{id}", path, nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// GetMessages calls GET /messages/conversation/{id}.
func (c *Client) GetMessages(ctx context.Context, conversationID models.ID) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	path := "/messages/conversation/" + url.PathEscape(conversationID.String())
	if err := c.do(ctx, http.MethodGet, "/messages/conversation/{id}", path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SendMessage calls POST /messages.
func (c *Client) SendMessage(ctx context.Context, in OutgoingMessage) error {
	return c.do(ctx, http.MethodPost, "/messages", "/messages", in, nil)
}

// StartConversation calls POST /messages/conversations to open a thread with a vendor.
func (c *Client) StartConversation(ctx context.Context, userID, vendorProfileID models.ID) (models.ID, error) {
	in := struct {
		UserID          models.ID `json:"userId"`
		VendorProfileID models.ID `json:"vendorProfileId"`
	}{userID, vendorProfileID}
	var out struct {
		ConversationID models.ID `json:"conversationId"`
	}
	if err := c.do(ctx, http.MethodPost, "/messages/conversations", "/messages/conversations", in, &out); err != nil {
		return "", err
	}
	return out.ConversationID, nil
}

// CreateSupportConversation calls POST /messages/conversations/support.
func (c *Client) CreateSupportConversation(ctx context.Context, userID models.ID, ticket models.SupportTicket) (models.ID, error) {
	in := struct {
		UserID models.ID `json:"userId"`
		models.SupportTicket
	}{userID, ticket}
	var out struct {
		ConversationID models.ID `json:"conversationId"`
	}
	if err := c.do(ctx, http.MethodPost, "/messages/conversations/support", "/messages/conversations/support", in, &out); err != nil {
		return "", err
	}
	return out.ConversationID, nil
}

// ListFAQs calls GET /public/faqs.
func (c *Client) ListFAQs(ctx context.Context) ([]models.FAQ, error) {
	var out struct {
		FAQs []models.FAQ `json:"faqs"`
	}
	if err := c.do(ctx, http.MethodGet, "/public/faqs", "/public/faqs", nil, &out); err != nil {
		return nil, err
	}
	return out.FAQs, nil
}

// SendFAQFeedback calls POST /public/faqs/{id}/feedback.
func (c *Client) SendFAQFeedback(ctx context.Context, faqID, userID models.ID, helpful bool) error {
	rating := "not_helpful"
	if helpful {
		rating = "helpful"
	}
	in := struct {
		UserID *models.ID `json:"userId"`
		Rating string     `json:"rating"`
	}{models.IDPtr(userID), rating}
	path := "/public/faqs/" + url.PathEscape(faqID.String()) + "/feedback"
	return c.do(ctx, http.MethodPost, "/public/faqs/{id}/feedback", path, in, nil)
}
