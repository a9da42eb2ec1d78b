package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_UnmarshalNumberOrString(t *testing.T) {
	t.Parallel()

	var payload struct {
		A ID  `json:"a"`
		B ID  `json:"b"`
		C *ID `json:"c"`
		D ID  `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":42,"b":"c-17","c":null,"d":null}`), &payload))
	assert.Equal(t, ID("42"), payload.A)
	assert.Equal(t, ID("c-17"), payload.B)
	assert.Nil(t, payload.C)
	assert.True(t, payload.D.IsZero())
}

func TestID_MarshalKeepsNumericIDsNumeric(t *testing.T) {
	t.Parallel()

	out, err := json.Marshal(map[string]ID{"n": "7", "s": "abc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":7,"s":"abc"}`, string(out))
}

func TestConversation_DecodesBackendCasing(t *testing.T) {
	t.Parallel()

	var c Conversation
	require.NoError(t, json.Unmarshal([]byte(`{"conversationId":3,"otherPartyType":"vendor","unreadCount":4}`), &c))
	assert.Equal(t, ID("3"), c.ID)
	assert.Equal(t, PartyVendor, c.OtherPartyType)
	assert.Equal(t, 4, c.UnreadCount)
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"server message", NewAPIError(http.StatusBadRequest, "Email already registered"), "Email already registered"},
		{"wrapped server message", fmt.Errorf("login: %w", NewAPIError(http.StatusUnauthorized, "Invalid credentials")), "Invalid credentials"},
		{"empty server message", NewAPIError(http.StatusBadRequest, ""), "fallback"},
		{"internal error hides detail", NewInternalError(errors.New("boom")), "fallback"},
		{"transport error", errors.New("dial tcp: refused"), "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err, "fallback"))
		})
	}
}

func TestNewAPIError_Classification(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNotFound(NewAPIError(http.StatusNotFound, "")))
	assert.True(t, IsUnauthorized(NewAPIError(http.StatusForbidden, "")))
	assert.Equal(t, "INTERNAL_ERROR", NewAPIError(http.StatusBadGateway, "").Code)
	assert.Equal(t, "VALIDATION_ERROR", NewAPIError(http.StatusUnprocessableEntity, "").Code)
}

func TestParseVoteType(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]VoteType{"up": VoteUp, "down": VoteDown, "none": VoteNone, "": VoteNone} {
		got, ok := ParseVoteType(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseVoteType("sideways")
	assert.False(t, ok)
	assert.Equal(t, "none", VoteNone.WireValue())
}
