// Package telegram wraps the Telegram Bot API: it runs the update loop,
// dispatches commands, and routes confirm-button callbacks.
package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/peachorobo/peacho/pkg/logger"
	"github.com/peachorobo/peacho/pkg/models"
)

// Bot represents a Telegram bot instance
type Bot struct {
	api *tgbotapi.BotAPI
	log *logger.Logger
}

// CommandHandler is a function that handles a bot command
type CommandHandler func(message *tgbotapi.Message)

// CallbackHandler is a function that handles a confirm-button callback
type CallbackHandler func(callback *tgbotapi.CallbackQuery)

// Observer sees every sender the bot hears from, before dispatch
type Observer func(chatID int64, from *tgbotapi.User)

// New creates a new Telegram bot instance
func New(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	bot := &Bot{
		api: api,
		log: logger.New("telegram"),
	}

	bot.log.Info("Telegram bot created: @%s", api.Self.UserName)
	return bot, nil
}

// Start starts the bot and listens for updates. It blocks until the update
// channel closes.
func (b *Bot) Start(commandHandlers map[string]CommandHandler, callbackHandler CallbackHandler, observer Observer) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		if observer != nil {
			if chatID, from := origin(update); from != nil {
				observer(chatID, from)
			}
		}

		if update.CallbackQuery != nil {
			if callbackHandler != nil {
				b.log.Info("Handling callback %q from user %s", update.CallbackQuery.Data, update.CallbackQuery.From.UserName)
				callbackHandler(update.CallbackQuery)
			}
			continue
		}

		if update.Message != nil && update.Message.IsCommand() {
			command := update.Message.Command()
			if handler, ok := commandHandlers[command]; ok {
				b.log.Info("Handling command %s from user %s in chat %d", command, update.Message.From.UserName, update.Message.Chat.ID)
				handler(update.Message)
			}
		}
	}

	return nil
}

func origin(update tgbotapi.Update) (int64, *tgbotapi.User) {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID, update.Message.From
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		return update.CallbackQuery.Message.Chat.ID, update.CallbackQuery.From
	default:
		return 0, nil
	}
}

// Send sends a text message to a chat
func (b *Bot) Send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}

// SendDM sends a private message to a user. For Telegram, a one-to-one chat
// shares the user's ID.
func (b *Bot) SendDM(userID int64, text string) error {
	return b.Send(userID, text)
}

// Prompt sends a message with a single confirm button whose callback data
// carries the given signal.
func (b *Bot) Prompt(chatID int64, text, signal string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Confirm ✅", signal),
		),
	)
	_, err := b.api.Send(msg)
	return err
}

// AnswerCallback answers a callback query
func (b *Bot) AnswerCallback(callbackID string, text string) error {
	callback := tgbotapi.NewCallback(callbackID, text)
	_, err := b.api.Request(callback)
	return err
}

// Participant converts a Telegram user into a participant record.
func Participant(u *tgbotapi.User) models.Participant {
	displayName := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if displayName == "" {
		displayName = u.UserName
	}
	return models.Participant{
		ID:          u.ID,
		Name:        u.UserName,
		DisplayName: displayName,
		Bot:         u.IsBot,
	}
}
