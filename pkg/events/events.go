// Package events persists mystery dinners as a single append-ordered
// collection. The last entry whose time has not yet passed is the active
// dinner; older entries stay in the collection as history.
package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/peachorobo/peacho/pkg/logger"
	"github.com/peachorobo/peacho/pkg/models"
	"github.com/peachorobo/peacho/pkg/storage"
)

const collectionKey = "dinners"

// ErrUnresolvableParticipant is returned by Latest when a stored participant
// can no longer be resolved to a live identity.
var ErrUnresolvableParticipant = errors.New("participant no longer resolvable")

// Resolver re-hydrates a stored participant ID into a live participant.
type Resolver func(userID int64) (models.Participant, error)

// record is the serialized form of one dinner in the collection.
type record struct {
	ID          int                 `json:"id"`
	DatetimeISO string              `json:"datetime_iso"`
	Calendar    *models.CalendarRef `json:"calendar,omitempty"`
	Pairings    []models.Pairing    `json:"pairings"`
}

// Store reads and writes the dinner collection.
//
// Reads and writes of the collection are individually serialized by the
// underlying database, but a Create or CancelLatest is a read-modify-write
// and is not atomic against another one. The bot's single dispatch loop keeps
// these operations from overlapping in practice.
type Store struct {
	store *storage.Store
	loc   *time.Location
	now   func() time.Time
	log   *logger.Logger
}

// New creates a dinner store. Times are compared in loc when deciding
// whether the last dinner is still upcoming.
func New(store *storage.Store, loc *time.Location) *Store {
	return &Store{
		store: store,
		loc:   loc,
		now:   time.Now,
		log:   logger.New("events"),
	}
}

// Create appends a new dinner with id = count+1 and persists the collection.
func (s *Store) Create(pairings []models.Pairing, scheduledTime time.Time, cal *models.CalendarRef) (*models.Dinner, error) {
	all, err := s.load()
	if err != nil {
		return nil, err
	}

	rec := record{
		ID:          len(all) + 1,
		DatetimeISO: scheduledTime.In(s.loc).Format(time.RFC3339),
		Calendar:    cal,
		Pairings:    pairings,
	}
	all = append(all, rec)

	if err := s.store.Set(collectionKey, all); err != nil {
		return nil, fmt.Errorf("failed to persist dinners: %w", err)
	}

	s.log.Info("Created dinner %d scheduled for %s with %d pairings", rec.ID, rec.DatetimeISO, len(pairings))
	return &models.Dinner{
		ID:       rec.ID,
		Time:     scheduledTime.In(s.loc),
		Pairings: pairings,
		Calendar: cal,
	}, nil
}

// Latest returns the last dinner in the collection if its scheduled time is
// still in the future, or nil when there is no upcoming dinner. Stored
// participants are re-hydrated through resolve.
func (s *Store) Latest(resolve Resolver) (*models.Dinner, error) {
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	last := all[len(all)-1]
	scheduled, err := time.Parse(time.RFC3339, last.DatetimeISO)
	if err != nil {
		return nil, fmt.Errorf("corrupt dinner record %d: %w", last.ID, err)
	}
	if !scheduled.After(s.now().In(s.loc)) {
		return nil, nil
	}

	pairings := make([]models.Pairing, 0, len(last.Pairings))
	for _, p := range last.Pairings {
		giver, err := resolve(p.Giver.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: user %d: %v", ErrUnresolvableParticipant, p.Giver.ID, err)
		}
		recipient, err := resolve(p.Recipient.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: user %d: %v", ErrUnresolvableParticipant, p.Recipient.ID, err)
		}
		pairings = append(pairings, models.Pairing{Giver: giver, Recipient: recipient})
	}

	return &models.Dinner{
		ID:       last.ID,
		Time:     scheduled.In(s.loc),
		Pairings: pairings,
		Calendar: last.Calendar,
	}, nil
}

// CancelLatest removes the last dinner from the collection and persists the
// shortened collection. It is a no-op when the collection is empty.
func (s *Store) CancelLatest() error {
	all, err := s.load()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		return nil
	}

	removed := all[len(all)-1]
	all = all[:len(all)-1]
	if err := s.store.Set(collectionKey, all); err != nil {
		return fmt.Errorf("failed to persist dinners: %w", err)
	}

	s.log.Info("Cancelled dinner %d", removed.ID)
	return nil
}

func (s *Store) load() ([]record, error) {
	var all []record
	err := s.store.Get(collectionKey, &all)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load dinners: %w", err)
	}
	return all, nil
}
