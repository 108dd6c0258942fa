// Package dinner orchestrates the mystery dinner lifecycle: proposing a
// time, gating it on the proposer's confirmation, generating pairings,
// persisting the event and announcing it, and later cancelling it.
package dinner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/peachorobo/peacho/pkg/confirm"
	"github.com/peachorobo/peacho/pkg/events"
	"github.com/peachorobo/peacho/pkg/logger"
	"github.com/peachorobo/peacho/pkg/models"
	"github.com/peachorobo/peacho/pkg/pairing"
	"github.com/peachorobo/peacho/pkg/roster"
	"github.com/peachorobo/peacho/pkg/timeparse"
)

// Confirmation signals carried in the confirm-button callbacks.
const (
	SignalConfirmSchedule = "confirm:schedule"
	SignalConfirmCancel   = "confirm:cancel"
)

var (
	// ErrNoUpcomingDinner is returned when an operation needs an active dinner and none exists.
	ErrNoUpcomingDinner = errors.New("no upcoming dinners found")
	// ErrDinnerAlreadyScheduled is returned when a dinner is proposed while one is still upcoming.
	ErrDinnerAlreadyScheduled = errors.New("a mystery dinner is already scheduled; cancel it first")
	// ErrNoPairing is returned when the caller has no assignment in the active dinner.
	ErrNoPairing = errors.New("no pairing found")
)

// Messenger is the slice of the chat transport the workflow needs.
type Messenger interface {
	Send(chatID int64, text string) error
	SendDM(userID int64, text string) error
	// Prompt posts a message with a confirm button that carries signal.
	Prompt(chatID int64, text, signal string) error
}

// Calendar creates and removes calendar entries for dinners.
type Calendar interface {
	Create(ctx context.Context, start time.Time) (*models.CalendarRef, error)
	Delete(ctx context.Context, id string) error
}

// Workflow runs the scheduling state machine. All collaborators are
// injected; a nil Calendar disables calendar entries.
type Workflow struct {
	events  *events.Store
	roster  *roster.Service
	gate    *confirm.Gate
	cal     Calendar
	msgr    Messenger
	loc     *time.Location
	timeout time.Duration
	rng     *rand.Rand
	now     func() time.Time
	log     *logger.Logger
}

// New creates a scheduling workflow
func New(
	eventStore *events.Store,
	rosterService *roster.Service,
	gate *confirm.Gate,
	cal Calendar,
	msgr Messenger,
	loc *time.Location,
	timeout time.Duration,
	rng *rand.Rand,
) *Workflow {
	return &Workflow{
		events:  eventStore,
		roster:  rosterService,
		gate:    gate,
		cal:     cal,
		msgr:    msgr,
		loc:     loc,
		timeout: timeout,
		rng:     rng,
		now:     time.Now,
		log:     logger.New("dinner"),
	}
}

// Propose validates the proposed time, posts an invitation, and waits for
// the proposer to confirm. On confirmation it generates pairings, persists
// the dinner, and sends the announcements; on timeout nothing happens beyond
// the invitation. Exactly this path creates dinners.
func (w *Workflow) Propose(ctx context.Context, chatID int64, proposer models.Participant, rawDatetime string) error {
	scheduledTime, err := timeparse.Parse(rawDatetime, w.now(), w.loc)
	if err != nil {
		return err
	}

	active, err := w.active(chatID)
	if err != nil {
		return err
	}
	if active != nil {
		return ErrDinnerAlreadyScheduled
	}

	prettyTime := timeparse.Pretty(scheduledTime)
	err = w.msgr.Prompt(chatID, fmt.Sprintf(
		"You want to schedule a mystery dinner for %s? Confirm to send out pairings.", prettyTime,
	), SignalConfirmSchedule)
	if err != nil {
		return fmt.Errorf("failed to post invitation: %w", err)
	}

	if !w.gate.Await(ctx, proposer.ID, SignalConfirmSchedule, w.timeout) {
		w.log.Info("Dinner proposal for %s not confirmed in time", prettyTime)
		return nil
	}

	members, err := w.nonBotMembers(chatID)
	if err != nil {
		return err
	}
	pairings, err := pairing.Generate(members, w.rng)
	if err != nil {
		return err
	}

	var cal *models.CalendarRef
	if w.cal != nil {
		cal, err = w.cal.Create(ctx, scheduledTime)
		if err != nil {
			// The calendar entry is an enrichment; the dinner goes ahead without it.
			w.log.Warn("Failed to create calendar event: %v", err)
			cal = nil
		}
	}

	dinner, err := w.events.Create(pairings, scheduledTime, cal)
	if err != nil {
		return err
	}

	for _, p := range dinner.Pairings {
		dm := fmt.Sprintf(
			"Hi %s, you're getting dinner for %s. This is happening %s. Use /help to see how to send anonymous messages.",
			p.Giver.DisplayName, p.Recipient.DisplayName, prettyTime,
		)
		if err := w.msgr.SendDM(p.Giver.ID, dm); err != nil {
			w.log.Error("Failed to DM giver %d: %v", p.Giver.ID, err)
		}
	}

	wrapUp := "That's it folks, all the pairings have been sent out."
	if dinner.Calendar != nil && dinner.Calendar.JoinURI != "" {
		wrapUp += fmt.Sprintf(" The hangout link is %s.", dinner.Calendar.JoinURI)
	}
	wrapUp += " Enjoy your meal!"
	return w.msgr.Send(chatID, wrapUp)
}

// Cancel asks for confirmation and then removes the upcoming dinner,
// deleting its calendar entry best-effort. On timeout no state changes.
func (w *Workflow) Cancel(ctx context.Context, chatID int64, actor models.Participant) error {
	next, err := w.active(chatID)
	if err != nil {
		return err
	}
	if next == nil {
		return ErrNoUpcomingDinner
	}

	prettyTime := timeparse.Pretty(next.Time)
	err = w.msgr.Prompt(chatID, fmt.Sprintf(
		"Are you sure you want to cancel the next dinner with id %d on %s?", next.ID, prettyTime,
	), SignalConfirmCancel)
	if err != nil {
		return fmt.Errorf("failed to post cancellation prompt: %w", err)
	}

	if !w.gate.Await(ctx, actor.ID, SignalConfirmCancel, w.timeout) {
		w.log.Info("Cancellation of dinner %d not confirmed in time", next.ID)
		return nil
	}

	if w.cal != nil && next.Calendar != nil {
		if err := w.cal.Delete(ctx, next.Calendar.ID); err != nil {
			w.log.Warn("Failed to delete calendar event %s: %v", next.Calendar.ID, err)
		}
	}

	if err := w.events.CancelLatest(); err != nil {
		return err
	}

	return w.msgr.Send(chatID, fmt.Sprintf(
		"The next dinner with id %d on %s was cancelled", next.ID, prettyTime,
	))
}

// Next announces the upcoming dinner in the chat.
func (w *Workflow) Next(chatID int64) error {
	next, err := w.active(chatID)
	if err != nil {
		return err
	}
	if next == nil {
		return ErrNoUpcomingDinner
	}

	return w.msgr.Send(chatID, w.describe(next))
}

// Remind privately reminds a participant who they are buying dinner for.
func (w *Workflow) Remind(chatID, userID int64) error {
	next, err := w.active(chatID)
	if err != nil {
		return err
	}
	if next == nil {
		return ErrNoUpcomingDinner
	}

	for _, p := range next.Pairings {
		if p.Giver.ID == userID {
			return w.msgr.SendDM(userID, fmt.Sprintf(
				"%s You're getting dinner for %s.", w.describe(next), p.Recipient.DisplayName,
			))
		}
	}
	return ErrNoPairing
}

// Active returns the upcoming dinner for a chat, or nil when there is none.
func (w *Workflow) Active(chatID int64) (*models.Dinner, error) {
	return w.active(chatID)
}

func (w *Workflow) active(chatID int64) (*models.Dinner, error) {
	return w.events.Latest(func(userID int64) (models.Participant, error) {
		return w.roster.Resolve(chatID, userID)
	})
}

func (w *Workflow) nonBotMembers(chatID int64) ([]models.Participant, error) {
	all, err := w.roster.Members(chatID)
	if err != nil {
		return nil, err
	}
	members := make([]models.Participant, 0, len(all))
	for _, m := range all {
		if !m.Bot {
			members = append(members, m)
		}
	}
	return members, nil
}

func (w *Workflow) describe(d *models.Dinner) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The next dinner with id %d will be %s.", d.ID, timeparse.Pretty(d.Time))
	if d.Calendar != nil && d.Calendar.JoinURI != "" {
		fmt.Fprintf(&b, " The hangout link is %s.", d.Calendar.JoinURI)
	}
	return b.String()
}
