package models

import (
	"strings"
	"unicode/utf8"

	"github.com/bobmcallan/mfdesk/internal/common"
)

// MaxChatMessage bounds a single chat message in characters.
const MaxChatMessage = 4000

// ChatRequest is the support chat request body.
type ChatRequest struct {
	Message         string `json:"message"`
	SelectedContent string `json:"selectedContent,omitempty"`
}

// Validate requires a non-empty message within MaxChatMessage.
func (r *ChatRequest) Validate() error {
	ve := common.NewValidationError()
	r.Message = strings.TrimSpace(r.Message)
	switch n := utf8.RuneCountInString(r.Message); {
	case n == 0:
		ve.Add("message", "is required")
	case n > MaxChatMessage:
		ve.Add("message", "is too long")
	}
	if utf8.RuneCountInString(r.SelectedContent) > 4*MaxChatMessage {
		ve.Add("selectedContent", "is too long")
	}
	return ve.Err()
}

// ChatResponse is the support chat reply.
type ChatResponse struct {
	Response string `json:"response"`
}
