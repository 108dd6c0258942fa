package sales

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixtures(t *testing.T, lastRunAge time.Duration, count int) *Checker {
	t.Helper()
	dir := t.TempDir()

	lastRunPath := filepath.Join(dir, "last_success")
	countPath := filepath.Join(dir, "num_sales")
	lastRun := time.Now().Add(-lastRunAge).Unix()
	require.NoError(t, os.WriteFile(lastRunPath, []byte(fmt.Sprintf("%d\n", lastRun)), 0o644))
	require.NoError(t, os.WriteFile(countPath, []byte(fmt.Sprintf("%d\n", count)), 0o644))

	c := New("https://shop.example.com", lastRunPath, countPath)
	c.retries = 2
	c.backoff = time.Millisecond
	return c
}

func TestCheckHealthyQuiet(t *testing.T) {
	c := writeFixtures(t, time.Minute, 120)
	c.live = func(ctx context.Context) (int, error) { return 120, nil }

	messages, err := c.Check(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestCheckHealthyVerbose(t *testing.T) {
	c := writeFixtures(t, time.Minute, 120)
	c.live = func(ctx context.Context) (int, error) { return 120, nil }

	messages, err := c.Check(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0], "ran in the last")
	assert.Contains(t, messages[1], "matches")
}

func TestCheckStaleHeartbeat(t *testing.T) {
	c := writeFixtures(t, time.Hour, 120)
	c.live = func(ctx context.Context) (int, error) { return 120, nil }

	messages, err := c.Check(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "has not run")
}

func TestCheckMismatchAfterRetries(t *testing.T) {
	c := writeFixtures(t, time.Minute, 120)
	calls := 0
	c.live = func(ctx context.Context) (int, error) {
		calls++
		return 125, nil
	}

	messages, err := c.Check(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "120 sales recorded vs 125 sales")
	assert.Equal(t, 1, calls, "live count is fetched once; retries re-read the recorded count")
}

func TestCheckMismatchResolvedDuringRetry(t *testing.T) {
	c := writeFixtures(t, time.Minute, 120)
	c.backoff = 50 * time.Millisecond
	c.live = func(ctx context.Context) (int, error) { return 121, nil }

	// Simulate the worker catching up while we are retrying.
	go func() {
		time.Sleep(5 * time.Millisecond)
		os.WriteFile(c.countPath, []byte("121"), 0o644)
	}()

	messages, err := c.Check(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestCheckScrapeFailure(t *testing.T) {
	c := writeFixtures(t, time.Minute, 120)
	c.live = func(ctx context.Context) (int, error) { return 0, fmt.Errorf("blocked") }

	_, err := c.Check(context.Background(), false)
	assert.Error(t, err)
}

func TestParseSalesText(t *testing.T) {
	count, err := parseSalesText("12,345 Sales")
	require.NoError(t, err)
	assert.Equal(t, 12345, count)

	count, err = parseSalesText(" 7 Sales ")
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	_, err = parseSalesText("")
	assert.Error(t, err)

	_, err = parseSalesText("Sales")
	assert.Error(t, err)
}
