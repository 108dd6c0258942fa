// Package highlights looks up video highlights for a player's most recent
// game through the league stats API. The API is flaky, so lookups retry a
// bounded number of times with a fixed backoff.
package highlights

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/peachorobo/peacho/pkg/logger"
)

const (
	defaultBaseURL = "https://stats.nba.com/stats"
	defaultRetries = 3
	defaultBackoff = 5 * time.Second

	// scoring field goal in play-by-play event typing
	eventTypeMadeShot = 1
)

var teamIDs = map[string]int{
	"ATL": 1610612737, "BOS": 1610612738, "BKN": 1610612751, "CHA": 1610612766,
	"CHI": 1610612741, "CLE": 1610612739, "DAL": 1610612742, "DEN": 1610612743,
	"DET": 1610612765, "GSW": 1610612744, "HOU": 1610612745, "IND": 1610612754,
	"LAC": 1610612746, "LAL": 1610612747, "MEM": 1610612763, "MIA": 1610612748,
	"MIL": 1610612749, "MIN": 1610612750, "NOP": 1610612740, "NYK": 1610612752,
	"OKC": 1610612760, "ORL": 1610612753, "PHI": 1610612755, "PHX": 1610612756,
	"POR": 1610612757, "SAC": 1610612758, "SAS": 1610612759, "TOR": 1610612761,
	"UTA": 1610612762, "WAS": 1610612764,
}

// Game is a player's most recent game together with their scoring plays.
type Game struct {
	ID      string
	Matchup string
	Date    time.Time
	Plays   []Play
}

// Play is one play-by-play entry worth watching.
type Play struct {
	EventID     int
	Description string
}

// Video is a playable highlight clip.
type Video struct {
	Description string
	URI         string
}

// TeamID resolves a team abbreviation like "DEN".
func TeamID(abbreviation string) (int, error) {
	id, ok := teamIDs[strings.ToUpper(abbreviation)]
	if !ok {
		return 0, fmt.Errorf("unknown team abbreviation %q", abbreviation)
	}
	return id, nil
}

// Client is a stats API client.
type Client struct {
	baseURL string
	http    *http.Client
	retries int
	backoff time.Duration
	now     func() time.Time
	log     *logger.Logger
}

// New creates a highlights client
func New() *Client {
	return &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retries: defaultRetries,
		backoff: defaultBackoff,
		now:     time.Now,
		log:     logger.New("highlights"),
	}
}

// resultSet mirrors the stats API's header/rowSet table encoding.
type resultSet struct {
	Name    string          `json:"name"`
	Headers []string        `json:"headers"`
	RowSet  [][]interface{} `json:"rowSet"`
}

type statsResponse struct {
	ResultSets []resultSet `json:"resultSets"`
}

// rows converts a result set into header-keyed maps.
func (r resultSet) rows() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(r.RowSet))
	for _, raw := range r.RowSet {
		row := make(map[string]interface{}, len(r.Headers))
		for i, header := range r.Headers {
			if i < len(raw) {
				row[header] = raw[i]
			}
		}
		out = append(out, row)
	}
	return out
}

// PlayerID resolves a player's numeric id from their full name.
func (c *Client) PlayerID(ctx context.Context, name string) (int, error) {
	resp, err := c.get(ctx, "commonallplayers", url.Values{
		"IsOnlyCurrentSeason": {"1"},
		"LeagueID":            {"00"},
		"Season":              {c.currentSeason()},
	})
	if err != nil {
		return 0, err
	}

	want := normalizeName(name)
	for _, set := range resp.ResultSets {
		for _, row := range set.rows() {
			full, _ := row["DISPLAY_FIRST_LAST"].(string)
			if normalizeName(full) == want {
				return asInt(row["PERSON_ID"]), nil
			}
		}
	}
	return 0, fmt.Errorf("unknown player %q", name)
}

// RecentGame finds the player's most recent game and their made shots in it,
// retrying transient API failures.
func (c *Client) RecentGame(ctx context.Context, playerID int) (*Game, error) {
	var game *Game
	err := c.withRetry(ctx, "recent game", func() error {
		var err error
		game, err = c.recentGame(ctx, playerID)
		return err
	})
	return game, err
}

func (c *Client) recentGame(ctx context.Context, playerID int) (*Game, error) {
	resp, err := c.get(ctx, "playergamelog", url.Values{
		"PlayerID":   {fmt.Sprint(playerID)},
		"Season":     {c.currentSeason()},
		"SeasonType": {"Regular Season"},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.ResultSets) == 0 || len(resp.ResultSets[0].RowSet) == 0 {
		return nil, fmt.Errorf("no games found for player %d", playerID)
	}

	latest := resp.ResultSets[0].rows()[0]
	gameID, _ := latest["Game_ID"].(string)
	matchup, _ := latest["MATCHUP"].(string)
	rawDate, _ := latest["GAME_DATE"].(string)
	date, err := time.Parse("Jan 02, 2006", rawDate)
	if err != nil {
		// Some endpoints return ISO dates instead.
		date, _ = time.Parse("2006-01-02", rawDate)
	}

	plays, err := c.scoringPlays(ctx, gameID, playerID)
	if err != nil {
		return nil, err
	}

	return &Game{ID: gameID, Matchup: matchup, Date: date, Plays: plays}, nil
}

func (c *Client) scoringPlays(ctx context.Context, gameID string, playerID int) ([]Play, error) {
	resp, err := c.get(ctx, "playbyplayv2", url.Values{
		"GameID":      {gameID},
		"StartPeriod": {"1"},
		"EndPeriod":   {"10"},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.ResultSets) == 0 {
		return nil, fmt.Errorf("no play-by-play for game %s", gameID)
	}

	var plays []Play
	for _, row := range resp.ResultSets[0].rows() {
		if asInt(row["EVENTMSGTYPE"]) != eventTypeMadeShot || asInt(row["PLAYER1_ID"]) != playerID {
			continue
		}
		description, _ := row["HOMEDESCRIPTION"].(string)
		if description == "" {
			description, _ = row["VISITORDESCRIPTION"].(string)
		}
		plays = append(plays, Play{EventID: asInt(row["EVENTNUM"]), Description: description})
	}
	return plays, nil
}

// videoResponse is the odd one out: resultSets is an object here.
type videoResponse struct {
	ResultSets struct {
		Meta struct {
			VideoURLs []struct {
				LargeURL string `json:"lurl"`
			} `json:"videoUrls"`
		} `json:"Meta"`
		Playlist []struct {
			Description string `json:"dsc"`
		} `json:"playlist"`
	} `json:"resultSets"`
}

// Video fetches the clip for one play, retrying transient failures. It
// returns nil without error when no clip exists for the play.
func (c *Client) Video(ctx context.Context, gameID string, eventID int) (*Video, error) {
	var video *Video
	err := c.withRetry(ctx, "video lookup", func() error {
		var err error
		video, err = c.video(ctx, gameID, eventID)
		return err
	})
	return video, err
}

func (c *Client) video(ctx context.Context, gameID string, eventID int) (*Video, error) {
	raw, err := c.getRaw(ctx, "videoeventsasset", url.Values{
		"GameID":      {gameID},
		"GameEventID": {fmt.Sprint(eventID)},
	})
	if err != nil {
		return nil, err
	}

	var resp videoResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode video response: %w", err)
	}

	urls := resp.ResultSets.Meta.VideoURLs
	playlist := resp.ResultSets.Playlist
	if len(urls) == 0 || urls[0].LargeURL == "" {
		return nil, nil
	}

	video := &Video{URI: urls[0].LargeURL}
	if len(playlist) > 0 {
		video.Description = playlist[0].Description
	}
	return video, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (*statsResponse, error) {
	raw, err := c.getRaw(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var resp statsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return &resp, nil
}

func (c *Client) getRaw(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode()), nil)
	if err != nil {
		return nil, err
	}
	// The stats API rejects requests without browser-looking headers.
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Referer", "https://www.nba.com/")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}
	return body, nil
}

func (c *Client) withRetry(ctx context.Context, what string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == c.retries {
			break
		}
		c.log.Warn("%s failed (attempt %d/%d): %v", what, attempt+1, c.retries, err)
		select {
		case <-time.After(c.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", what, c.retries+1, err)
}

// currentSeason formats the season string, e.g. "2025-26" from October 2025
// through the following summer.
func (c *Client) currentSeason() string {
	now := c.now()
	year := now.Year()
	if now.Month() < time.October {
		year--
	}
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func asInt(v interface{}) int {
	f, _ := v.(float64)
	return int(f)
}
