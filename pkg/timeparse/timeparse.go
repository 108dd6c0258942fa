// Package timeparse turns free-form scheduling text like "next friday at 6pm"
// into a concrete time in the bot's reference timezone.
package timeparse

import (
	"errors"
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var (
	// ErrUnparseable is returned when no date or time could be read from the text.
	ErrUnparseable = errors.New("could not parse date and time")
	// ErrPastTime is returned when the parsed time is not in the future.
	ErrPastTime = errors.New("scheduled time is in the past")
)

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// Parse resolves raw against base in the given location and requires the
// result to be strictly in the future relative to base.
func Parse(raw string, base time.Time, loc *time.Location) (time.Time, error) {
	result, err := parser.Parse(raw, base.In(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if result == nil {
		return time.Time{}, ErrUnparseable
	}

	t := result.Time.In(loc)
	if !t.After(base) {
		return time.Time{}, ErrPastTime
	}
	return t, nil
}

// Pretty formats a time the way it appears in announcements,
// e.g. "Friday March 5 at 6:30 PM".
func Pretty(t time.Time) string {
	return t.Format("Monday January 2 at 3:04 PM")
}
