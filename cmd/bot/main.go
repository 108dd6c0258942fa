package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/peachorobo/peacho/pkg/calendar"
	"github.com/peachorobo/peacho/pkg/config"
	"github.com/peachorobo/peacho/pkg/confirm"
	"github.com/peachorobo/peacho/pkg/dinner"
	"github.com/peachorobo/peacho/pkg/events"
	"github.com/peachorobo/peacho/pkg/highlights"
	"github.com/peachorobo/peacho/pkg/logger"
	"github.com/peachorobo/peacho/pkg/models"
	"github.com/peachorobo/peacho/pkg/relay"
	"github.com/peachorobo/peacho/pkg/roster"
	"github.com/peachorobo/peacho/pkg/sales"
	"github.com/peachorobo/peacho/pkg/storage"
	"github.com/peachorobo/peacho/pkg/telegram"
	"github.com/peachorobo/peacho/pkg/vaccine"
	"github.com/peachorobo/peacho/pkg/watch"
)

const signalConfirmHighlights = "confirm:highlights"

const helpText = `Mystery dinner commands:
/schedule <when> - propose a dinner (group chat)
/next - show the upcoming dinner (group chat)
/cancel - cancel the upcoming dinner (group chat)
/remindme - DM me to hear who you're getting dinner for
/yourfoodshere <text> - DM me to message your recipient anonymously
/wheresmyfood <text> - DM me to message your gifter anonymously
/highlights TEAM player name - fetch recent game highlights`

func main() {
	log := logger.Global
	log.Info("Starting Peacho bot...")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	store, err := storage.New(cfg.DataDir)
	if err != nil {
		log.Error("Failed to initialize storage: %v", err)
		os.Exit(1)
	}
	defer store.Close()
	store.StartGCRoutine(10 * time.Minute)

	rosterService := roster.New(store)
	eventStore := events.New(store, cfg.Location)
	gate := confirm.NewGate()

	var cal dinner.Calendar
	if cfg.CalDAVURL != "" {
		cal = calendar.New(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword,
			cfg.CalendarEmails, cfg.MeetingURL)
	} else {
		log.Warn("CALDAV_URL not set; dinners will be scheduled without calendar entries")
	}

	bot, err := telegram.New(cfg.BotToken)
	if err != nil {
		log.Error("Failed to initialize Telegram bot: %v", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	workflow := dinner.New(eventStore, rosterService, gate, cal, bot,
		cfg.Location, cfg.ConfirmTimeout, rng)

	activeDinner := func() (*models.Dinner, error) {
		return workflow.Active(cfg.DinnerChatID)
	}
	router := relay.New(activeDinner, bot)

	highlightsClient := highlights.New()

	debugSend := func(text string) {
		if err := bot.Send(cfg.DebugChatID, text); err != nil {
			log.Error("Failed to send watch alert: %v", err)
		}
	}

	var watchers []*watch.Scheduler
	if cfg.SalesLastRunPath != "" && cfg.SalesCountPath != "" {
		salesChecker := sales.New(cfg.ShopURL, cfg.SalesLastRunPath, cfg.SalesCountPath)
		watchers = append(watchers, watch.New("sales", cfg.SalesInterval, salesChecker.Check, debugSend))
	} else {
		log.Warn("Sales watch disabled: SALES_LAST_RUN_PATH / SALES_COUNT_PATH not set")
	}
	vaccineChecker := vaccine.New(cfg.VaccineState)
	watchers = append(watchers, watch.New("vaccine", cfg.VaccineInterval, vaccineChecker.Check, debugSend))

	watchByName := make(map[string]*watch.Scheduler, len(watchers))
	for _, w := range watchers {
		if err := w.Start(); err != nil {
			log.Error("Failed to start watcher: %v", err)
			os.Exit(1)
		}
		watchByName[w.Name()] = w
	}

	ctx := context.Background()

	requireDinnerChat := func(message *tgbotapi.Message) bool {
		if message.Chat.ID != cfg.DinnerChatID {
			bot.Send(message.Chat.ID, "This can only be used in the mystery dinner chat")
			return false
		}
		return true
	}
	requireDM := func(message *tgbotapi.Message) bool {
		if !message.Chat.IsPrivate() {
			bot.Send(message.Chat.ID, "This can only be used in a private chat with me")
			return false
		}
		return true
	}
	reportError := func(chatID int64, err error) {
		if err != nil {
			bot.Send(chatID, err.Error())
		}
	}

	commandHandlers := map[string]telegram.CommandHandler{
		"schedule": func(message *tgbotapi.Message) {
			if !requireDinnerChat(message) {
				return
			}
			proposer := telegram.Participant(message.From)
			rawDatetime := message.CommandArguments()
			// Runs in its own goroutine so the update loop stays free to
			// deliver the confirmation callback.
			go func() {
				reportError(message.Chat.ID, workflow.Propose(ctx, message.Chat.ID, proposer, rawDatetime))
			}()
		},
		"next": func(message *tgbotapi.Message) {
			if !requireDinnerChat(message) {
				return
			}
			reportError(message.Chat.ID, workflow.Next(message.Chat.ID))
		},
		"cancel": func(message *tgbotapi.Message) {
			if !requireDinnerChat(message) {
				return
			}
			actor := telegram.Participant(message.From)
			go func() {
				reportError(message.Chat.ID, workflow.Cancel(ctx, message.Chat.ID, actor))
			}()
		},
		"remindme": func(message *tgbotapi.Message) {
			if !requireDM(message) {
				return
			}
			reportError(message.Chat.ID, workflow.Remind(cfg.DinnerChatID, message.From.ID))
		},
		"yourfoodshere": func(message *tgbotapi.Message) {
			if !requireDM(message) {
				return
			}
			reportError(message.Chat.ID, router.ToRecipient(message.From.ID, message.CommandArguments()))
		},
		"wheresmyfood": func(message *tgbotapi.Message) {
			if !requireDM(message) {
				return
			}
			reportError(message.Chat.ID, router.ToGiver(message.From.ID, message.CommandArguments()))
		},
		"highlights": func(message *tgbotapi.Message) {
			go runHighlights(ctx, bot, gate, highlightsClient, cfg.ConfirmTimeout, message)
		},
		"help": func(message *tgbotapi.Message) {
			bot.Send(message.Chat.ID, helpText)
		},
	}
	for _, name := range []string{"saleswatch", "vacwatch"} {
		watchName := map[string]string{"saleswatch": "sales", "vacwatch": "vaccine"}[name]
		commandHandlers[name] = func(message *tgbotapi.Message) {
			watcher, ok := watchByName[watchName]
			if !ok {
				bot.Send(message.Chat.ID, fmt.Sprintf("The %s watch is not enabled", watchName))
				return
			}
			chatID := message.Chat.ID
			go func() {
				bot.Send(chatID, fmt.Sprintf("Manually running %s watch", watchName))
				watcher.RunNow(ctx, true, func(text string) { bot.Send(chatID, text) })
				bot.Send(chatID, fmt.Sprintf("Finished %s watch", watchName))
			}()
		}
	}

	callbackHandler := func(callback *tgbotapi.CallbackQuery) {
		if gate.Resolve(callback.From.ID, callback.Data) {
			bot.AnswerCallback(callback.ID, "Confirmed!")
		} else {
			// Wrong user, wrong button, or the wait already expired.
			bot.AnswerCallback(callback.ID, "")
		}
	}

	observer := func(chatID int64, from *tgbotapi.User) {
		if chatID != cfg.DinnerChatID {
			return
		}
		if err := rosterService.Track(chatID, telegram.Participant(from)); err != nil {
			log.Error("Failed to track chat member: %v", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutting down...")
		for _, w := range watchers {
			w.Stop()
		}
		store.Close()
		os.Exit(0)
	}()

	log.Info("Bot is now running. Press CTRL-C to exit.")
	if err := bot.Start(commandHandlers, callbackHandler, observer); err != nil {
		log.Error("Error running bot: %v", err)
		os.Exit(1)
	}
}

// runHighlights fetches a player's most recent game, asks the requester to
// confirm, and then posts the available clips.
func runHighlights(ctx context.Context, bot *telegram.Bot, gate *confirm.Gate, client *highlights.Client, timeout time.Duration, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	args := strings.Fields(message.CommandArguments())
	if len(args) < 2 {
		bot.Send(chatID, "Usage: /highlights TEAM player name")
		return
	}
	teamAbbreviation, playerName := args[0], strings.Join(args[1:], " ")

	if _, err := highlights.TeamID(teamAbbreviation); err != nil {
		bot.Send(chatID, fmt.Sprintf("Error getting team: %v", err))
		return
	}
	playerID, err := client.PlayerID(ctx, playerName)
	if err != nil {
		bot.Send(chatID, fmt.Sprintf("Error getting player: %v", err))
		return
	}

	bot.Send(chatID, fmt.Sprintf("Getting the most recent game for %s on %s, please be patient...", playerName, teamAbbreviation))
	game, err := client.RecentGame(ctx, playerID)
	if err != nil {
		bot.Send(chatID, fmt.Sprintf("Sorry, couldn't get the most recent game for %s", playerName))
		return
	}

	if err := bot.Prompt(chatID, fmt.Sprintf(
		"Found a game: %s on %s. Show %d highlights now?",
		game.Matchup, game.Date.Format("Monday January 2"), len(game.Plays),
	), signalConfirmHighlights); err != nil {
		return
	}
	if !gate.Await(ctx, message.From.ID, signalConfirmHighlights, timeout) {
		return
	}

	for _, play := range game.Plays {
		video, err := client.Video(ctx, game.ID, play.EventID)
		if err != nil || video == nil {
			continue
		}
		bot.Send(chatID, fmt.Sprintf("%s\n%s", video.Description, video.URI))
	}
}
