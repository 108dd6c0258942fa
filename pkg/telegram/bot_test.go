package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"

	"github.com/peachorobo/peacho/pkg/models"
)

func TestParticipant(t *testing.T) {
	got := Participant(&tgbotapi.User{
		ID:        42,
		UserName:  "alice",
		FirstName: "Alice",
		LastName:  "Example",
	})
	assert.Equal(t, models.Participant{ID: 42, Name: "alice", DisplayName: "Alice Example"}, got)
}

func TestParticipantFallsBackToUserName(t *testing.T) {
	got := Participant(&tgbotapi.User{ID: 7, UserName: "peacho", IsBot: true})
	assert.Equal(t, models.Participant{ID: 7, Name: "peacho", DisplayName: "peacho", Bot: true}, got)
}
