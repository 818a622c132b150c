package telegram

import (
	"encoding/json"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mitchellh/mapstructure"

	"github.com/japersik/weather-map/internal/mapSession"
)

// Callback is the inline button payload. Telegram allows 64 bytes, hence the short keys.
type Callback struct {
	CallbackType CallbackType `json:"t"`
	Data         interface{}  `json:"d,omitempty"`
}

type CallbackType int

const (
	selectMarkerCallback CallbackType = iota
	closePopupCallback
	pickSuggestionCallback
)

var (
	WrongCallbackErr = errors.New("wrong Callback")
)

func encodeCallback(callbackType CallbackType, data interface{}) string {
	raw, _ := json.Marshal(Callback{CallbackType: callbackType, Data: data})
	return string(raw)
}

func decodeCallback(data string) (Callback, error) {
	callback := Callback{}
	if err := json.Unmarshal([]byte(data), &callback); err != nil {
		return Callback{}, WrongCallbackErr
	}
	return callback, nil
}

func (b *Bot) handleCallback(chat *tgbotapi.Chat, query *tgbotapi.CallbackQuery) error {
	if _, err := b.bot.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		return err
	}
	if chat == nil {
		return WrongCallbackErr
	}
	callback, err := decodeCallback(query.Data)
	if err != nil {
		return err
	}
	session := b.session(chat.ID)

	switch callback.CallbackType {
	case selectMarkerCallback:
		var markerId string
		if err := mapstructure.Decode(callback.Data, &markerId); err != nil {
			return WrongCallbackErr
		}
		if err := session.OnMarkerClick(markerId); err != nil {
			if errors.Is(err, mapSession.ErrUnknownMarker) {
				return b.sendText(chat.ID, "That marker is gone. Send /markers to see the current ones.")
			}
			return err
		}
		return nil
	case closePopupCallback:
		session.OnPopupClose()
		return nil
	case pickSuggestionCallback:
		var placeId string
		if err := mapstructure.Decode(callback.Data, &placeId); err != nil {
			return WrongCallbackErr
		}
		return b.handlePickSuggestion(chat, placeId)
	default:
		return fmt.Errorf("%w: type %d", WrongCallbackErr, callback.CallbackType)
	}
}
