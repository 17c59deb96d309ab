package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDateRoundTrip(t *testing.T) {
	date, err := ParseDate("2026-03-10")
	require.NoError(t, err)
	require.Equal(t, Date{Year: 2026, Month: time.March, Day: 10}, date)
	require.Equal(t, "2026-03-10", date.String())
}

func TestParseDateRejectsGarbage(t *testing.T) {
	_, err := ParseDate("10/03/2026")
	require.Error(t, err)

	_, err = ParseDate("")
	require.Error(t, err)
}

func TestDateOfUsesLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	instant := time.Date(2026, time.March, 9, 23, 30, 0, 0, time.UTC)
	require.Equal(t, Date{Year: 2026, Month: time.March, Day: 9}, DateOf(instant))
	require.Equal(t, Date{Year: 2026, Month: time.March, Day: 10}, DateOf(instant.In(tokyo)))
}

func TestAddDaysCrossesMonth(t *testing.T) {
	date := Date{Year: 2026, Month: time.March, Day: 1}
	require.Equal(t, Date{Year: 2026, Month: time.February, Day: 28}, date.AddDays(-1))
	require.Equal(t, Date{Year: 2026, Month: time.March, Day: 31}, date.AddDays(30))
}

func TestIsZero(t *testing.T) {
	require.True(t, Date{}.IsZero())
	require.False(t, Date{Year: 2026, Month: time.March, Day: 10}.IsZero())
}
