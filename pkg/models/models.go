package models

import (
	"time"
)

// Participant is a chat-platform identity taking part in a mystery dinner.
// The JSON field names match the on-disk event records.
type Participant struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Bot         bool   `json:"bot"`
}

// Pairing is a single giver -> recipient assignment within a dinner.
type Pairing struct {
	Giver     Participant `json:"user"`
	Recipient Participant `json:"matched_with"`
}

// CalendarRef points at the calendar entry created for a dinner.
// JoinURI is empty when the calendar adapter could not produce a join link.
type CalendarRef struct {
	ID      string `json:"id"`
	JoinURI string `json:"uri"`
}

// Dinner is one scheduled mystery dinner occurrence. It is created only by
// the scheduling workflow; the only mutation after creation is full removal.
type Dinner struct {
	ID       int
	Time     time.Time
	Pairings []Pairing
	Calendar *CalendarRef
}
