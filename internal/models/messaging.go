package models

import "time"

// PartyType identifies the role of the other participant in a conversation.
type PartyType string

const (
	PartyVendor PartyType = "vendor"
	PartyUser   PartyType = "user"
)

// Conversation is a thread between a client and a vendor (or support).
type Conversation struct {
	ID                 ID         `json:"ConversationID"`
	OtherPartyName     string     `json:"OtherPartyName"`
	OtherPartyType     PartyType  `json:"OtherPartyType"`
	OtherPartyAvatar   string     `json:"OtherPartyAvatar,omitempty"`
	UnreadCount        int        `json:"UnreadCount"`
	LastMessageContent string     `json:"LastMessageContent"`
	LastMessageAt      *time.Time `json:"LastMessageCreatedAt,omitempty"`
	VendorProfileID    *ID        `json:"VendorProfileID,omitempty"`
}

// Message is a single chat message. Messages are append-only from the
// client's point of view.
type Message struct {
	ID             ID         `json:"MessageID"`
	ConversationID ID         `json:"ConversationID"`
	SenderID       ID         `json:"SenderID"`
	SenderName     string     `json:"SenderName,omitempty"`
	Content        string     `json:"Content"`
	CreatedAt      time.Time  `json:"CreatedAt"`
	IsRead         bool       `json:"IsRead"`
	ReadAt         *time.Time `json:"ReadAt,omitempty"`
}

// FAQ is a help-center article shown in the messaging widget.
type FAQ struct {
	ID       ID     `json:"FAQID"`
	Question string `json:"Question"`
	Answer   string `json:"Answer"`
	Category string `json:"Category"`
}

// SupportTicket is a request to open a conversation with support.
type SupportTicket struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// BookingInfo is optional booking context shown as a banner inside a chat.
type BookingInfo struct {
	ServiceName string     `json:"serviceName,omitempty"`
	EventDate   *time.Time `json:"eventDate,omitempty"`
	Location    string     `json:"location,omitempty"`
	Guests      int        `json:"guests,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}
