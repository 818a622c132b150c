package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/japersik/weather-map/internal/mapSession"
	"github.com/japersik/weather-map/model"
)

const (
	suggestTimeout   = 5 * time.Second
	maxButtonTextLen = 60
	// older keyboards stay usable until a chat has this many places on offer
	maxRememberedSuggestions = 100
)

func (b *Bot) handleSearchCommand(message *tgbotapi.Message) error {
	address := strings.TrimSpace(message.CommandArguments())
	if address == "" {
		return b.sendText(message.Chat.ID, "Usage: /search <address>")
	}
	return b.search(message.Chat.ID, address)
}

func (b *Bot) search(chatID int64, address string) error {
	err := b.session(chatID).OnSearchSelect(address)
	if errors.Is(err, mapSession.ErrEmptyAddress) {
		return b.sendText(chatID, "Usage: /search <address>")
	}
	return err
}

//handleSuggestText answers free text with address candidates as inline buttons.
func (b *Bot) handleSuggestText(message *tgbotapi.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), suggestTimeout)
	defer cancel()

	text := strings.TrimSpace(message.Text)
	suggestions, err := b.session(message.Chat.ID).Suggest(ctx, text)
	if err != nil {
		return b.sendText(message.Chat.ID, fmt.Sprintf("🔎 Search is unavailable right now: %v", err))
	}
	if len(suggestions) == 0 {
		return b.sendText(message.Chat.ID, fmt.Sprintf("🔎 Nothing found for %q.", text))
	}

	b.remember(message.Chat.ID, suggestions)

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(suggestions))
	for _, s := range suggestions {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(truncate(s.Description, maxButtonTextLen), encodeCallback(pickSuggestionCallback, s.PlaceId)),
		))
	}
	msg := tgbotapi.NewMessage(message.Chat.ID, "Did you mean:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err = b.Send(msg)
	return err
}

// remember keeps the offered places by id so a button keeps its meaning when newer keyboards are sent.
func (b *Bot) remember(chatID int64, suggestions []model.Suggestion) {
	b.mu.Lock()
	defer b.mu.Unlock()
	offered := b.suggestions[chatID]
	if offered == nil || len(offered)+len(suggestions) > maxRememberedSuggestions {
		offered = make(map[string]model.Suggestion, len(suggestions))
		b.suggestions[chatID] = offered
	}
	for _, s := range suggestions {
		offered[s.PlaceId] = s
	}
}

func (b *Bot) handlePickSuggestion(chat *tgbotapi.Chat, placeId string) error {
	b.mu.Lock()
	suggestion, ok := b.suggestions[chat.ID][placeId]
	b.mu.Unlock()
	if !ok {
		return b.sendText(chat.ID, "Those suggestions expired, type the address again.")
	}
	return b.search(chat.ID, suggestion.Description)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
