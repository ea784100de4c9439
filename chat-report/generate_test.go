package chatreport

import (
	"testing"
	"time"

	"github.com/tj/assert"
)

func TestReportKey(t *testing.T) {
	timestamp := time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC)
	key := ReportKey("stats-cron", "presence", timestamp)
	assert.Equal(t, "stats-cron/presence/2024-03-01/15/2024-03-01-15:04:05.json", key)
}
