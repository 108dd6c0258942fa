// Package pairing turns a set of participants into a cyclic set of
// giver -> recipient assignments for a mystery dinner.
package pairing

import (
	"errors"
	"math/rand"
	"time"

	"github.com/peachorobo/peacho/pkg/models"
)

// ErrNoParticipants is returned when there is nobody to pair.
var ErrNoParticipants = errors.New("at least one participant is required")

// Generate shuffles the participants and pairs each one with the next,
// wrapping around, so everyone gives to exactly one person and receives from
// exactly one person. With three or more participants nobody is paired with
// themself; with two they give to each other; a single participant ends up
// paired with themself.
//
// The result is deterministic for a fixed rng. Callers are responsible for
// excluding bot accounts.
func Generate(members []models.Participant, rng *rand.Rand) ([]models.Pairing, error) {
	if len(members) == 0 {
		return nil, ErrNoParticipants
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	shuffled := make([]models.Participant, len(members))
	copy(shuffled, members)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return cycle(shuffled), nil
}

// cycle pairs element i with element (i+1) mod N.
func cycle(ordered []models.Participant) []models.Pairing {
	pairings := make([]models.Pairing, 0, len(ordered))
	for i, giver := range ordered {
		recipient := ordered[(i+1)%len(ordered)]
		pairings = append(pairings, models.Pairing{Giver: giver, Recipient: recipient})
	}
	return pairings
}
