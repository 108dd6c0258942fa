// Package vaccine watches a state's pharmacy vaccine-appointment feed and
// reports cities with open appointments.
package vaccine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/peachorobo/peacho/pkg/logger"
)

const (
	defaultEndpoint = "https://www.cvs.com/immunizations/covid-19-vaccine.vaccine-status.%s.json?vaccineinfo"
	bookingURL      = "https://www.cvs.com/immunizations/covid-19-vaccine"
	refererURL      = "https://www.cvs.com/immunizations/covid-19-vaccine"
)

// Checker polls the appointment feed for one state.
type Checker struct {
	state    string
	endpoint string
	client   *http.Client
	log      *logger.Logger
}

// New creates a vaccine appointment checker for a two-letter state code.
func New(state string) *Checker {
	return &Checker{
		state:    strings.ToUpper(state),
		endpoint: fmt.Sprintf(defaultEndpoint, strings.ToUpper(state)),
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      logger.New("vaccine"),
	}
}

type statusFeed struct {
	ResponsePayloadData struct {
		Data map[string][]cityStatus `json:"data"`
	} `json:"responsePayloadData"`
}

type cityStatus struct {
	City   string `json:"city"`
	Status string `json:"status"`
}

// Check implements the watch check.
func (c *Checker) Check(ctx context.Context, verbose bool) ([]string, error) {
	openings, err := c.openings(ctx)
	if err != nil {
		return nil, err
	}

	if len(openings) > 0 {
		return []string{fmt.Sprintf(
			"Openings available! Book at: %s. Cities available: %s",
			bookingURL, strings.Join(openings, ", "),
		)}, nil
	}
	if verbose {
		return []string{"No openings found"}, nil
	}
	return nil, nil
}

func (c *Checker) openings(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", refererURL)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch appointment feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("appointment feed returned status %d", resp.StatusCode)
	}

	var feed statusFeed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode appointment feed: %w", err)
	}

	var open []string
	for _, city := range feed.ResponsePayloadData.Data[c.state] {
		if city.Status == "Available" {
			open = append(open, city.City)
		}
	}
	return open, nil
}
