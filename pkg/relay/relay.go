// Package relay forwards anonymous one-hop messages between the two sides of
// a pairing in the active dinner. The sender's identity never appears in the
// forwarded text.
package relay

import (
	"errors"
	"fmt"

	"github.com/peachorobo/peacho/pkg/logger"
	"github.com/peachorobo/peacho/pkg/models"
)

var (
	// ErrNoActiveEvent is returned when there is no upcoming dinner to relay within.
	ErrNoActiveEvent = errors.New("no upcoming dinner found")
	// ErrNotAParticipant is returned when the sender has no pairing in the active dinner.
	ErrNotAParticipant = errors.New("no pairing found")
)

// DirectMessenger sends a private message to a single user.
type DirectMessenger interface {
	SendDM(userID int64, text string) error
}

// ActiveDinner returns the current upcoming dinner, or nil when there is none.
type ActiveDinner func() (*models.Dinner, error)

// Router relays messages between paired participants.
type Router struct {
	active ActiveDinner
	msgr   DirectMessenger
	log    *logger.Logger
}

// New creates a relay router
func New(active ActiveDinner, msgr DirectMessenger) *Router {
	return &Router{
		active: active,
		msgr:   msgr,
		log:    logger.New("relay"),
	}
}

// ToRecipient forwards a message from a giver to the person they are
// gifting, then acknowledges the sender.
func (r *Router) ToRecipient(senderID int64, text string) error {
	pairing, err := r.findPairing(func(p models.Pairing) bool { return p.Giver.ID == senderID })
	if err != nil {
		return err
	}

	if err := r.msgr.SendDM(pairing.Recipient.ID, fmt.Sprintf("Your gifter says via Peacho: %s", text)); err != nil {
		return fmt.Errorf("failed to deliver message: %w", err)
	}
	r.log.Info("Relayed giver message for user %d", senderID)
	return r.msgr.SendDM(senderID, fmt.Sprintf("Message successfully sent to recipient %s.", pairing.Recipient.DisplayName))
}

// ToGiver forwards a message from a recipient back to their anonymous
// benefactor, then acknowledges the sender.
func (r *Router) ToGiver(senderID int64, text string) error {
	pairing, err := r.findPairing(func(p models.Pairing) bool { return p.Recipient.ID == senderID })
	if err != nil {
		return err
	}

	if err := r.msgr.SendDM(pairing.Giver.ID, fmt.Sprintf("Your recipient says via Peacho: %s", text)); err != nil {
		return fmt.Errorf("failed to deliver message: %w", err)
	}
	r.log.Info("Relayed recipient message for user %d", senderID)
	return r.msgr.SendDM(senderID, "Message successfully sent to your gifter.")
}

func (r *Router) findPairing(match func(models.Pairing) bool) (*models.Pairing, error) {
	dinner, err := r.active()
	if err != nil {
		return nil, err
	}
	if dinner == nil {
		return nil, ErrNoActiveEvent
	}

	for i := range dinner.Pairings {
		if match(dinner.Pairings[i]) {
			return &dinner.Pairings[i], nil
		}
	}
	return nil, ErrNotAParticipant
}
