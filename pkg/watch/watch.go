package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/robfig/cron/v3"

	"github.com/peachorobo/peacho/pkg/logger"
)

// CheckFunc evaluates a watched condition and returns the alert messages it
// produced, if any. Implementations may retry transient failures internally;
// an error return becomes a single alert message on the scheduler side.
type CheckFunc func(ctx context.Context, verbose bool) ([]string, error)

// SendFunc delivers one alert message.
type SendFunc func(text string)

// Scheduler runs a check on a fixed interval and emits its messages through
// a send function, deduplicated by fingerprint of the ordered message set.
type Scheduler struct {
	name     string
	interval time.Duration
	check    CheckFunc
	send     SendFunc
	log      *logger.Logger
	cron     *cron.Cron

	mu     sync.Mutex
	lastFP uint64
	hasFP  bool
}

// New creates a scheduler for one watched condition. send receives the
// messages of scheduled runs; manual runs supply their own sink.
func New(name string, interval time.Duration, check CheckFunc, send SendFunc) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		check:    check,
		send:     send,
		log:      logger.New(name),
	}
}

// Start begins periodic checking. It returns an error when the interval
// cannot be scheduled.
func (s *Scheduler) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.run(context.Background(), false, s.send)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s watch: %w", s.name, err)
	}
	s.cron.Start()
	s.log.Info("Started %s watch with interval %v", s.name, s.interval)
	return nil
}

// Name returns the watcher's name.
func (s *Scheduler) Name() string { return s.name }

// Stop halts periodic checking. Manual runs remain possible.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.log.Info("Stopped %s watch", s.name)
	}
}

// RunNow bypasses the schedule but shares the same dedup state. With
// verbose set, checks include healthy/no-change detail in their messages.
func (s *Scheduler) RunNow(ctx context.Context, verbose bool, send SendFunc) {
	s.run(ctx, verbose, send)
}

func (s *Scheduler) run(ctx context.Context, verbose bool, send SendFunc) {
	messages := s.safeCheck(ctx, verbose)

	fp := fingerprint(messages)
	s.mu.Lock()
	if s.hasFP && fp == s.lastFP {
		s.mu.Unlock()
		s.log.Debug("%s watch: no change, suppressing %d message(s)", s.name, len(messages))
		return
	}
	s.lastFP = fp
	s.hasFP = true
	s.mu.Unlock()

	for _, msg := range messages {
		send(msg)
	}
}

// safeCheck converts check errors and panics into a single alert message so
// a failing check can never kill the watch loop.
func (s *Scheduler) safeCheck(ctx context.Context, verbose bool) (messages []string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("%s watch check panicked: %v", s.name, r)
			messages = []string{fmt.Sprintf("Error running %s watch: %v", s.name, r)}
		}
	}()

	messages, err := s.check(ctx, verbose)
	if err != nil {
		s.log.Error("%s watch check failed: %v", s.name, err)
		return []string{fmt.Sprintf("Error running %s watch: %v", s.name, err)}
	}
	return messages
}

// fingerprint hashes the ordered message set. Messages are length-framed so
// distinct sets cannot collide by concatenation; the empty set gets its own
// fingerprint, which makes "alert cleared" a one-time transition.
func fingerprint(messages []string) uint64 {
	d := xxhash.New()
	for _, msg := range messages {
		fmt.Fprintf(d, "%d:", len(msg))
		d.WriteString(msg)
	}
	return d.Sum64()
}
