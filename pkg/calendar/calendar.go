// Package calendar creates and deletes dinner entries on a CalDAV calendar.
// The adapter is an optional enrichment: scheduling proceeds without a
// calendar entry when it fails.
package calendar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/peachorobo/peacho/pkg/logger"
	"github.com/peachorobo/peacho/pkg/models"
)

const eventDuration = time.Hour

// Client talks to one CalDAV collection over HTTP.
type Client struct {
	baseURL    string
	username   string
	password   string
	attendees  []string
	meetingURL string
	http       *http.Client
	log        *logger.Logger
	now        func() time.Time
}

// New creates a CalDAV client. baseURL is the collection URL the event
// resources are PUT under; meetingURL, when set, is attached to each event
// and reported back as the join link.
func New(baseURL, username, password string, attendees []string, meetingURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		attendees:  attendees,
		meetingURL: meetingURL,
		http:       &http.Client{Timeout: 30 * time.Second},
		log:        logger.New("calendar"),
		now:        time.Now,
	}
}

// Create puts a one-hour mystery dinner event on the calendar starting at
// the given time and returns its reference.
func (c *Client) Create(ctx context.Context, start time.Time) (*models.CalendarRef, error) {
	id := uuid.NewString()

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodRequest)
	event := cal.AddEvent(id)
	event.SetCreatedTime(c.now())
	event.SetDtStampTime(c.now())
	event.SetStartAt(start)
	event.SetEndAt(start.Add(eventDuration))
	event.SetSummary("Mystery dinner")
	if c.meetingURL != "" {
		event.SetDescription(fmt.Sprintf("Join link: %s", c.meetingURL))
		event.SetURL(c.meetingURL)
	}
	for _, email := range c.attendees {
		event.AddAttendee(email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.resourceURL(id), strings.NewReader(cal.Serialize()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("calendar server returned status %d creating event", resp.StatusCode)
	}

	c.log.Info("Created calendar event %s for %s", id, start)
	return &models.CalendarRef{ID: id, JoinURI: c.meetingURL}, nil
}

// Delete removes a previously created event. Deleting an already-deleted
// event is not an error.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.resourceURL(id), nil)
	if err != nil {
		return err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete calendar event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return fmt.Errorf("calendar server returned status %d deleting event", resp.StatusCode)
	}

	c.log.Info("Deleted calendar event %s", id)
	return nil
}

func (c *Client) resourceURL(id string) string {
	return fmt.Sprintf("%s/%s.ics", c.baseURL, id)
}
