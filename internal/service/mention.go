package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/teamhive/collab-api/internal/dto"
	"github.com/teamhive/collab-api/internal/models"
	"github.com/teamhive/collab-api/internal/observability"
	"github.com/teamhive/collab-api/internal/repository"
)

// MentionToken is one @-reference found in message content. Raw keeps the
// original token for deduplication; DisplayName is the candidate handle to
// resolve against the user store.
type MentionToken struct {
	Raw         string
	DisplayName string
}

// MentionService extracts @displayName references from chat messages and
// fans chat pings out to the mentioned users.
//
// Resolution is strict: exact, case-sensitive display-name match. Tokens
// that resolve to nobody, to the sender, or to a non-member are dropped
// silently; a typo in a mention must not fail the message send.
type MentionService interface {
	Extract(content string) []MentionToken
	Notify(ctx context.Context, message dto.MessageResponse)
}

type mentionService struct {
	users         repository.UserRepository
	chats         repository.ChatRepository
	notifications NotificationService
	logger        zerolog.Logger
}

// NewMentionService constructs the mention resolver.
func NewMentionService(users repository.UserRepository, chats repository.ChatRepository, notifications NotificationService, logger zerolog.Logger) MentionService {
	return &mentionService{
		users:         users,
		chats:         chats,
		notifications: notifications,
		logger:        logger.With().Str("component", "mention_service").Logger(),
	}
}

// Extract tokenizes mentions in a single left-to-right pass. Quoted forms
// (@"Ada Lovelace", @'Ada Lovelace') capture multi-word names; the bare form
// (@ada) runs to the first character outside [letters digits _ . -]. An
// unterminated quote yields no token. Duplicate raw tokens are collapsed.
func (s *mentionService) Extract(content string) []MentionToken {
	runes := []rune(content)
	seen := make(map[string]struct{})
	var tokens []MentionToken

	for i := 0; i < len(runes); i++ {
		if runes[i] != '@' || i+1 >= len(runes) {
			continue
		}

		var raw, name string
		next := runes[i+1]

		switch next {
		case '"', '\'':
			end := -1
			for j := i + 2; j < len(runes); j++ {
				if runes[j] == next {
					end = j
					break
				}
			}
			if end < 0 {
				continue
			}
			name = string(runes[i+2 : end])
			raw = string(runes[i : end+1])
			i = end
		default:
			j := i + 1
			for j < len(runes) && isBareMentionRune(runes[j]) {
				j++
			}
			if j == i+1 {
				continue
			}
			name = string(runes[i+1 : j])
			raw = string(runes[i:j])
			i = j - 1
		}

		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		tokens = append(tokens, MentionToken{Raw: raw, DisplayName: name})
	}

	return tokens
}

// Notify resolves the message's mentions and dispatches a chat ping per
// mentioned user. Failures are logged and skipped; the message itself has
// already been delivered.
func (s *mentionService) Notify(ctx context.Context, message dto.MessageResponse) {
	tokens := s.Extract(message.Content)
	if len(tokens) == 0 {
		return
	}

	notified := make(map[string]struct{})
	for _, token := range tokens {
		user, err := s.users.FindByDisplayName(ctx, token.DisplayName)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("display_name", token.DisplayName).Msg("mention lookup failed")
			continue
		}
		if user.ID == message.SenderID {
			continue
		}
		if _, dup := notified[user.ID]; dup {
			continue
		}

		member, err := s.chats.IsMember(ctx, message.ChatID, user.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", user.ID).Uint("chat_id", message.ChatID).Msg("mention membership check failed")
			continue
		}
		if !member {
			continue
		}
		notified[user.ID] = struct{}{}

		chatID := message.ChatID
		_, err = s.notifications.Dispatch(ctx, dto.NotificationCreateRequest{
			RecipientID:     user.ID,
			Type:            models.NotificationChatPing,
			Title:           "You were mentioned",
			Message:         fmt.Sprintf("%s mentioned you in a chat", message.SenderName),
			RelatedEntityID: &chatID,
			Metadata: map[string]string{
				"chat_id":    fmt.Sprintf("%d", message.ChatID),
				"message_id": fmt.Sprintf("%d", message.ID),
			},
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("recipient_id", user.ID).Msg("mention notification dispatch failed")
			continue
		}
		observability.MentionsResolved().Inc()
	}
}

func isBareMentionRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-'
}
