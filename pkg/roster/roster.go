// Package roster keeps a per-chat record of members seen by the bot.
// Telegram exposes no member list for plain group chats, so the roster is
// built from observed traffic and stands in for a member snapshot when
// pairings are generated.
package roster

import (
	"fmt"
	"sort"

	"github.com/peachorobo/peacho/pkg/logger"
	"github.com/peachorobo/peacho/pkg/models"
	"github.com/peachorobo/peacho/pkg/storage"
)

// Service is a store-backed chat member roster.
type Service struct {
	store *storage.Store
	log   *logger.Logger
}

// New creates a roster service
func New(store *storage.Store) *Service {
	return &Service{
		store: store,
		log:   logger.New("roster"),
	}
}

func memberKey(chatID, userID int64) string {
	return fmt.Sprintf("roster:%d:%d", chatID, userID)
}

// Track records (or refreshes) a member of a chat.
func (s *Service) Track(chatID int64, p models.Participant) error {
	if err := s.store.Set(memberKey(chatID, p.ID), p); err != nil {
		return fmt.Errorf("failed to track member %d: %w", p.ID, err)
	}
	return nil
}

// Members returns every participant recorded for a chat, ordered by ID.
// Bot accounts are included; callers filter them where it matters.
func (s *Service) Members(chatID int64) ([]models.Participant, error) {
	keys, err := s.store.List(fmt.Sprintf("roster:%d:", chatID))
	if err != nil {
		return nil, err
	}

	members := make([]models.Participant, 0, len(keys))
	for _, key := range keys {
		var p models.Participant
		if err := s.store.Get(key, &p); err != nil {
			return nil, fmt.Errorf("failed to load member %s: %w", key, err)
		}
		members = append(members, p)
	}

	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

// Resolve looks up a single recorded member of a chat.
func (s *Service) Resolve(chatID, userID int64) (models.Participant, error) {
	var p models.Participant
	if err := s.store.Get(memberKey(chatID, userID), &p); err != nil {
		return models.Participant{}, err
	}
	return p, nil
}
