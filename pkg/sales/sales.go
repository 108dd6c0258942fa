// Package sales watches the shop sale counter: it verifies that the local
// sync worker has run recently and that the sale count it recorded matches
// the live count on the shop page.
package sales

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/peachorobo/peacho/pkg/logger"
)

const (
	// heartbeatWindow is how stale the worker's last-success timestamp may
	// be before we alert.
	heartbeatWindow = 5 * time.Minute

	defaultRetries = 12
	defaultBackoff = 10 * time.Second
	scrapeTimeout  = 45 * time.Second
)

// Checker compares the locally recorded sale count against the live shop
// page. The shop page is rendered client-side, so the live count is read
// through a headless browser.
type Checker struct {
	shopURL     string
	lastRunPath string
	countPath   string

	retries int
	backoff time.Duration
	now     func() time.Time
	live    func(ctx context.Context) (int, error)
	log     *logger.Logger
}

// New creates a sales checker. lastRunPath holds the worker's last success
// as unix seconds; countPath holds the recorded sale count.
func New(shopURL, lastRunPath, countPath string) *Checker {
	c := &Checker{
		shopURL:     shopURL,
		lastRunPath: lastRunPath,
		countPath:   countPath,
		retries:     defaultRetries,
		backoff:     defaultBackoff,
		now:         time.Now,
		log:         logger.New("sales"),
	}
	c.live = c.scrapeLiveCount
	return c
}

// Check implements the watch check. A recorded count that lags the live one
// is retried before alerting, since the worker may simply not have synced
// the newest sale yet.
func (c *Checker) Check(ctx context.Context, verbose bool) ([]string, error) {
	var messages []string

	ranRecently, err := c.workerRanRecently()
	if err != nil {
		return nil, fmt.Errorf("failed to read worker heartbeat: %w", err)
	}
	if !ranRecently {
		messages = append(messages, fmt.Sprintf("Sales worker has not run for more than %v. ERROR", heartbeatWindow))
	} else if verbose {
		messages = append(messages, fmt.Sprintf("Sales worker ran in the last %v", heartbeatWindow))
	}

	liveCount, err := c.live(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read live sale count: %w", err)
	}

	for attempt := 0; ; attempt++ {
		recorded, err := c.recordedCount()
		if err != nil {
			return nil, fmt.Errorf("failed to read recorded sale count: %w", err)
		}

		if recorded == liveCount {
			if verbose {
				messages = append(messages, fmt.Sprintf("Recorded sale count (%d) matches the shop page (%d)", recorded, liveCount))
			}
			break
		}

		if attempt >= c.retries {
			messages = append(messages, fmt.Sprintf("Sales mismatch! %d sales recorded vs %d sales on the shop page", recorded, liveCount))
			break
		}

		c.log.Debug("Sale count mismatch (%d recorded vs %d live), retry %d/%d", recorded, liveCount, attempt+1, c.retries)
		select {
		case <-time.After(c.backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return messages, nil
}

func (c *Checker) workerRanRecently() (bool, error) {
	raw, err := os.ReadFile(c.lastRunPath)
	if err != nil {
		return false, err
	}
	lastSuccess, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return false, fmt.Errorf("bad timestamp in %s: %w", c.lastRunPath, err)
	}
	age := c.now().Sub(time.Unix(int64(lastSuccess), 0))
	return age < heartbeatWindow, nil
}

func (c *Checker) recordedCount() (int, error) {
	raw, err := os.ReadFile(c.countPath)
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("bad count in %s: %w", c.countPath, err)
	}
	return count, nil
}

// scrapeLiveCount loads the shop page in a headless browser and reads the
// "N sales" link text.
func (c *Checker) scrapeLiveCount(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, scrapeTimeout)
	defer cancel()
	browserCtx, cancelBrowser := chromedp.NewContext(ctx)
	defer cancelBrowser()

	var salesText string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(c.shopURL),
		chromedp.Text(`a[href$="/sold"]`, &salesText, chromedp.ByQuery),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to scrape %s: %w", c.shopURL, err)
	}

	return parseSalesText(salesText)
}

// parseSalesText extracts the leading number from link text like
// "12,345 Sales".
func parseSalesText(text string) (int, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty sales text")
	}
	count, err := strconv.Atoi(strings.ReplaceAll(fields[0], ",", ""))
	if err != nil {
		return 0, fmt.Errorf("unexpected sales text %q: %w", text, err)
	}
	return count, nil
}
