package dinner

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peachorobo/peacho/pkg/confirm"
	"github.com/peachorobo/peacho/pkg/events"
	"github.com/peachorobo/peacho/pkg/models"
	"github.com/peachorobo/peacho/pkg/roster"
	"github.com/peachorobo/peacho/pkg/storage"
	"github.com/peachorobo/peacho/pkg/timeparse"
)

const testChatID int64 = 10

var newYork = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}()

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []string
	dms     map[int64][]string
	prompts []string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{dms: make(map[int64][]string)}
}

func (f *fakeMessenger) Send(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeMessenger) SendDM(userID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms[userID] = append(f.dms[userID], text)
	return nil
}

func (f *fakeMessenger) Prompt(chatID int64, text, signal string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, signal+" "+text)
	return nil
}

func (f *fakeMessenger) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeCalendar struct {
	ref     *models.CalendarRef
	err     error
	deleted []string
}

func (f *fakeCalendar) Create(ctx context.Context, start time.Time) (*models.CalendarRef, error) {
	return f.ref, f.err
}

func (f *fakeCalendar) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fixture struct {
	workflow *Workflow
	gate     *confirm.Gate
	msgr     *fakeMessenger
	cal      *fakeCalendar
	roster   *roster.Service
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	kv, err := storage.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	rosterService := roster.New(kv)
	eventStore := events.New(kv, newYork)
	gate := confirm.NewGate()
	msgr := newFakeMessenger()
	cal := &fakeCalendar{ref: &models.CalendarRef{ID: "cal-1", JoinURI: "https://meet.example.com/dinner"}}

	workflow := New(eventStore, rosterService, gate, cal, msgr, newYork,
		timeout, rand.New(rand.NewSource(1)))
	return &fixture{workflow: workflow, gate: gate, msgr: msgr, cal: cal, roster: rosterService}
}

func trackMembers(t *testing.T, f *fixture) (alice, bob, carol models.Participant) {
	t.Helper()
	alice = models.Participant{ID: 1, Name: "alice", DisplayName: "Alice"}
	bob = models.Participant{ID: 2, Name: "bob", DisplayName: "Bob"}
	carol = models.Participant{ID: 3, Name: "carol", DisplayName: "Carol"}
	peacho := models.Participant{ID: 99, Name: "peacho", DisplayName: "Peacho", Bot: true}
	for _, p := range []models.Participant{alice, bob, carol, peacho} {
		require.NoError(t, f.roster.Track(testChatID, p))
	}
	return alice, bob, carol
}

// confirmNextPrompt resolves the gate as actor once a prompt appears.
func confirmNextPrompt(t *testing.T, f *fixture, actorID int64, signal string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.msgr.promptCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no prompt was posted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, f.gate.Resolve(actorID, signal))
}

func TestScheduleConfirmAndCancel(t *testing.T) {
	f := newFixture(t, 2*time.Second)
	alice, _, _ := trackMembers(t, f)

	done := make(chan error, 1)
	go func() {
		done <- f.workflow.Propose(context.Background(), testChatID, alice, "tomorrow at 6pm")
	}()
	confirmNextPrompt(t, f, alice.ID, SignalConfirmSchedule)
	require.NoError(t, <-done)

	// One persisted dinner with id 1 and a full pairing cycle.
	dinner, err := f.workflow.Active(testChatID)
	require.NoError(t, err)
	require.NotNil(t, dinner)
	assert.Equal(t, 1, dinner.ID)
	assert.Len(t, dinner.Pairings, 3)
	for _, p := range dinner.Pairings {
		assert.False(t, p.Giver.Bot)
		assert.False(t, p.Recipient.Bot)
		assert.NotEqual(t, p.Giver.ID, p.Recipient.ID)
	}

	// Each giver got exactly one DM, and the public wrap-up went out.
	for _, id := range []int64{1, 2, 3} {
		assert.Len(t, f.msgr.dms[id], 1)
		assert.Contains(t, f.msgr.dms[id][0], "you're getting dinner for")
	}
	require.Len(t, f.msgr.sent, 1)
	assert.Contains(t, f.msgr.sent[0], "all the pairings have been sent out")
	assert.Contains(t, f.msgr.sent[0], "https://meet.example.com/dinner")

	// Now cancel it.
	f.msgr.prompts = nil
	go func() {
		done <- f.workflow.Cancel(context.Background(), testChatID, alice)
	}()
	confirmNextPrompt(t, f, alice.ID, SignalConfirmCancel)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"cal-1"}, f.cal.deleted)
	dinner, err = f.workflow.Active(testChatID)
	require.NoError(t, err)
	assert.Nil(t, dinner)
}

func TestProposePastTimeFailsBeforePrompt(t *testing.T) {
	f := newFixture(t, time.Second)
	alice, _, _ := trackMembers(t, f)

	err := f.workflow.Propose(context.Background(), testChatID, alice, "yesterday at 6pm")
	assert.ErrorIs(t, err, timeparse.ErrPastTime)
	assert.Zero(t, f.msgr.promptCount())
}

func TestProposeUnparseableFailsBeforePrompt(t *testing.T) {
	f := newFixture(t, time.Second)
	alice, _, _ := trackMembers(t, f)

	err := f.workflow.Propose(context.Background(), testChatID, alice, "qwertyuiop")
	assert.ErrorIs(t, err, timeparse.ErrUnparseable)
	assert.Zero(t, f.msgr.promptCount())
}

func TestProposeTimeoutCreatesNothing(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	alice, _, _ := trackMembers(t, f)

	require.NoError(t, f.workflow.Propose(context.Background(), testChatID, alice, "tomorrow at 6pm"))

	dinner, err := f.workflow.Active(testChatID)
	require.NoError(t, err)
	assert.Nil(t, dinner)
	assert.Empty(t, f.msgr.sent, "no announcements beyond the invitation")
	assert.Empty(t, f.msgr.dms)
}

func TestProposeConfirmationFromOtherUserIgnored(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	alice, bob, _ := trackMembers(t, f)

	done := make(chan error, 1)
	go func() {
		done <- f.workflow.Propose(context.Background(), testChatID, alice, "tomorrow at 6pm")
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.msgr.promptCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.False(t, f.gate.Resolve(bob.ID, SignalConfirmSchedule))
	require.NoError(t, <-done)

	dinner, err := f.workflow.Active(testChatID)
	require.NoError(t, err)
	assert.Nil(t, dinner)
}

func TestProposeRejectsOverlappingDinner(t *testing.T) {
	f := newFixture(t, time.Second)
	alice, _, _ := trackMembers(t, f)

	done := make(chan error, 1)
	go func() {
		done <- f.workflow.Propose(context.Background(), testChatID, alice, "tomorrow at 6pm")
	}()
	confirmNextPrompt(t, f, alice.ID, SignalConfirmSchedule)
	require.NoError(t, <-done)

	err := f.workflow.Propose(context.Background(), testChatID, alice, "tomorrow at 8pm")
	assert.ErrorIs(t, err, ErrDinnerAlreadyScheduled)
}

func TestProposeToleratesCalendarFailure(t *testing.T) {
	f := newFixture(t, time.Second)
	f.cal.ref = nil
	f.cal.err = errors.New("calendar unavailable")
	alice, _, _ := trackMembers(t, f)

	done := make(chan error, 1)
	go func() {
		done <- f.workflow.Propose(context.Background(), testChatID, alice, "tomorrow at 6pm")
	}()
	confirmNextPrompt(t, f, alice.ID, SignalConfirmSchedule)
	require.NoError(t, <-done)

	dinner, err := f.workflow.Active(testChatID)
	require.NoError(t, err)
	require.NotNil(t, dinner)
	assert.Nil(t, dinner.Calendar)
	require.Len(t, f.msgr.sent, 1)
	assert.NotContains(t, f.msgr.sent[0], "hangout link")
}

func TestCancelWithoutDinner(t *testing.T) {
	f := newFixture(t, time.Second)
	alice, _, _ := trackMembers(t, f)

	err := f.workflow.Cancel(context.Background(), testChatID, alice)
	assert.ErrorIs(t, err, ErrNoUpcomingDinner)
}

func TestCancelTimeoutKeepsDinner(t *testing.T) {
	f := newFixture(t, time.Second)
	alice, _, _ := trackMembers(t, f)

	done := make(chan error, 1)
	go func() {
		done <- f.workflow.Propose(context.Background(), testChatID, alice, "tomorrow at 6pm")
	}()
	confirmNextPrompt(t, f, alice.ID, SignalConfirmSchedule)
	require.NoError(t, <-done)

	f.workflow.timeout = 30 * time.Millisecond
	require.NoError(t, f.workflow.Cancel(context.Background(), testChatID, alice))

	dinner, err := f.workflow.Active(testChatID)
	require.NoError(t, err)
	assert.NotNil(t, dinner)
	assert.Empty(t, f.cal.deleted)
}

func TestNextAndRemind(t *testing.T) {
	f := newFixture(t, time.Second)
	alice, _, _ := trackMembers(t, f)

	assert.ErrorIs(t, f.workflow.Next(testChatID), ErrNoUpcomingDinner)

	done := make(chan error, 1)
	go func() {
		done <- f.workflow.Propose(context.Background(), testChatID, alice, "tomorrow at 6pm")
	}()
	confirmNextPrompt(t, f, alice.ID, SignalConfirmSchedule)
	require.NoError(t, <-done)

	f.msgr.sent = nil
	require.NoError(t, f.workflow.Next(testChatID))
	require.Len(t, f.msgr.sent, 1)
	assert.True(t, strings.HasPrefix(f.msgr.sent[0], "The next dinner with id 1"))

	f.msgr.dms = map[int64][]string{}
	require.NoError(t, f.workflow.Remind(testChatID, alice.ID))
	require.Len(t, f.msgr.dms[alice.ID], 1)
	assert.Contains(t, f.msgr.dms[alice.ID][0], "You're getting dinner for")

	assert.ErrorIs(t, f.workflow.Remind(testChatID, 12345), ErrNoPairing)
}
