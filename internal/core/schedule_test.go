package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleExpr(t *testing.T) {
	expr, err := ScheduleExpr("07:30", []string{"mon", "wed", "fri"})
	require.NoError(t, err)
	assert.Equal(t, "30 7 * * mon,wed,fri", expr)

	expr, err = ScheduleExpr("22:05", nil)
	require.NoError(t, err)
	assert.Equal(t, "5 22 * * *", expr)
}

func TestScheduleExprRejectsBadInput(t *testing.T) {
	_, err := ScheduleExpr("7:70", nil)
	assert.Error(t, err)

	_, err = ScheduleExpr("noon", nil)
	assert.Error(t, err)

	_, err = ScheduleExpr("08:00", []string{"monday"})
	assert.Error(t, err)
}

func TestParseScheduleRejectsMacros(t *testing.T) {
	_, err := ParseSchedule("@daily")
	assert.Error(t, err)

	_, err = ParseSchedule("not a cron")
	assert.Error(t, err)
}

func TestNextOccurrences(t *testing.T) {
	schedule, err := ParseSchedule("0 8 * * *")
	require.NoError(t, err)

	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	next := NextOccurrences(schedule, base, 3)
	require.Len(t, next, 3)
	assert.Equal(t, time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC), next[0])
	assert.Equal(t, time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC), next[1])
	assert.Equal(t, time.Date(2024, 3, 13, 8, 0, 0, 0, time.UTC), next[2])
}
