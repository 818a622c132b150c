package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/japersik/weather-map/internal/mapSession"
	"github.com/japersik/weather-map/logger"
	"github.com/japersik/weather-map/model"
)

const sessionKeyPrefix = "tg:"

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the chat surface: every chat gets its own map session.
type Bot struct {
	bot      botAPI
	self     tgbotapi.User
	sessions *mapSession.Registry
	now      func() time.Time

	mu          sync.Mutex
	suggestions map[int64]map[string]model.Suggestion
}

func NewBot(bot *tgbotapi.BotAPI, sessions *mapSession.Registry) *Bot {
	return newBot(bot, bot.Self, sessions)
}

func newBot(api botAPI, self tgbotapi.User, sessions *mapSession.Registry) *Bot {
	return &Bot{
		bot:         api,
		self:        self,
		sessions:    sessions,
		now:         time.Now,
		suggestions: map[int64]map[string]model.Suggestion{},
	}
}

//Start receives updates until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.bot.GetUpdatesChan(u)
	logger.InfoF("telegram bot @%s started", b.self.UserName)
	for {
		select {
		case <-ctx.Done():
			b.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.manageUpdate(update)
		}
	}
}

func (b *Bot) manageUpdate(update tgbotapi.Update) {
	var err error
	switch {
	case update.CallbackQuery != nil:
		err = b.handleCallback(update.FromChat(), update.CallbackQuery)
	case update.Message == nil:
		// ignore any non-Message Updates
	case update.Message.Location != nil:
		err = b.handleLocationMessage(update.Message)
	case update.Message.IsCommand():
		err = b.handleCommand(update.Message)
	case strings.TrimSpace(update.Message.Text) != "":
		err = b.handleSuggestText(update.Message)
	}
	if err != nil {
		logger.ErrorF("telegram update %d: %v", update.UpdateID, err)
	}
}

//session returns the chat's map session. A chat is a map surface that is always ready.
func (b *Bot) session(chatID int64) *mapSession.Session {
	s, _ := b.sessions.GetOrCreate(sessionKeyPrefix+strconv.FormatInt(chatID, 10), func(s *mapSession.Session) {
		s.AddObserver(b)
		if err := s.SurfaceReady(); err != nil {
			logger.ErrorF("chat %d: %v", chatID, err)
		}
	})
	return s
}

func chatIDFromKey(key string) (int64, bool) {
	if !strings.HasPrefix(key, sessionKeyPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(key, sessionKeyPrefix), 10, 64)
	return id, err == nil
}

//Notify turns session events of chat sessions into messages.
func (b *Bot) Notify(event mapSession.Event) {
	chatID, ok := chatIDFromKey(event.SessionKey)
	if !ok {
		return
	}
	var err error
	switch event.Kind {
	case mapSession.EventMarkerAdded:
		err = b.sendMarkerAdded(chatID, *event.Marker)
	case mapSession.EventLookupFailed:
		err = b.sendText(chatID, fmt.Sprintf("⚠️ Couldn't get the weather at %s: %s",
			formatCoordinate(event.Lookup.Coordinate), event.Message))
	case mapSession.EventPopupOpened:
		err = b.sendPopup(chatID, *event.Marker)
	case mapSession.EventCenterChanged:
		c := event.Center.Coordinate
		_, err = b.Send(tgbotapi.NewVenue(chatID, "Map moved", event.Message, c.Lat, c.Lng))
	case mapSession.EventSearchFailed:
		err = b.sendText(chatID, "🔎 "+event.Message)
	case mapSession.EventSessionReset:
		err = b.sendText(chatID, "Map cleared.")
	case mapSession.EventSessionClosed:
		b.mu.Lock()
		delete(b.suggestions, chatID)
		b.mu.Unlock()
	}
	if err != nil {
		logger.ErrorF("chat %d: sending %s: %v", chatID, event.Kind, err)
	}
}

func (b *Bot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return b.bot.Send(c)
}
