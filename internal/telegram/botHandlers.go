package telegram

import (
	"fmt"
	"html"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/japersik/weather-map/model"
)

const helpText = `Send me a location (📎 → Location) and I'll drop a marker there with the current weather.

/markers – list your markers
/search <address> – move the map to an address
/close – close the open marker
/reset – remove all markers

Any other text is treated as the start of an address: pick one of the suggestions to move the map there.`

func (b *Bot) handleCommand(message *tgbotapi.Message) error {
	switch message.Command() {
	case "start", "help":
		return b.handleStartCommand(message)
	case "markers":
		return b.handleMarkersCommand(message)
	case "search":
		return b.handleSearchCommand(message)
	case "close":
		b.session(message.Chat.ID).OnPopupClose()
		return nil
	case "reset":
		return b.session(message.Chat.ID).Reset()
	default:
		return b.sendText(message.Chat.ID, "Unknown command.\n\n"+helpText)
	}
}

func (b *Bot) handleStartCommand(message *tgbotapi.Message) error {
	b.session(message.Chat.ID)
	msg := tgbotapi.NewMessage(message.Chat.ID, helpText)
	msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonLocation("Weather at my location"),
		),
	)
	_, err := b.Send(msg)
	return err
}

func (b *Bot) handleLocationMessage(message *tgbotapi.Message) error {
	coord := model.Coordinate{
		Lng: message.Location.Longitude,
		Lat: message.Location.Latitude,
	}
	if !coord.Valid() {
		return b.sendText(message.Chat.ID, "That location is outside the map.")
	}
	if err := b.sendText(message.Chat.ID, fmt.Sprintf("Looking up the weather at %s…", formatCoordinate(coord))); err != nil {
		return err
	}
	_, err := b.session(message.Chat.ID).OnMapClick(coord)
	return err
}

func (b *Bot) handleMarkersCommand(message *tgbotapi.Message) error {
	markers := b.session(message.Chat.ID).Markers()
	if len(markers) == 0 {
		return b.sendText(message.Chat.ID, "No markers yet. Send a location to place one.")
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(markers))
	for i, m := range markers {
		label := fmt.Sprintf("%d. %.1f°F %s", i+1, m.Weather.Temperature, m.Weather.ConditionDescription)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, encodeCallback(selectMarkerCallback, m.Id)),
		))
	}
	msg := tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf("You have %d marker(s):", len(markers)))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err := b.Send(msg)
	return err
}

func (b *Bot) sendMarkerAdded(chatID int64, m model.Marker) error {
	text := fmt.Sprintf("📍 Marker placed at %s: %.1f°F, %s",
		formatCoordinate(m.Coordinate), m.Weather.Temperature, m.Weather.ConditionDescription)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Details", encodeCallback(selectMarkerCallback, m.Id)),
	))
	_, err := b.Send(msg)
	return err
}

func (b *Bot) sendPopup(chatID int64, m model.Marker) error {
	msg := tgbotapi.NewMessage(chatID, popupText(m, b.now()))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Close", encodeCallback(closePopupCallback, nil)),
	))
	_, err := b.Send(msg)
	return err
}

//popupText renders the marker's detail popup as Telegram HTML.
func popupText(m model.Marker, now time.Time) string {
	text := fmt.Sprintf("<b>%.1f°F</b> 🌤️\n%s\n📍 %s",
		m.Weather.Temperature, html.EscapeString(m.Weather.ConditionDescription), formatCoordinate(m.Coordinate))
	if m.Weather.LocationName != "" {
		text += " (" + html.EscapeString(m.Weather.LocationName) + ")"
	}
	if m.TimeZone != "" {
		text += fmt.Sprintf("\n🕒 %s local time (%s)", m.LocalTime(now).Format("15:04"), m.TimeZone)
	}
	return text
}

func formatCoordinate(c model.Coordinate) string {
	return fmt.Sprintf("%.5f, %.5f", c.Lat, c.Lng)
}

func (b *Bot) sendText(chatID int64, text string) error {
	_, err := b.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
