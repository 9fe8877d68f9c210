package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestBuildICS(t *testing.T) {
	id := uuid.New()
	start := time.Date(2026, 3, 12, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	ics := BuildICS(id, start, end, "https://meet.bookslot.dev/abc")

	require.True(t, strings.HasPrefix(ics, "BEGIN:VCALENDAR\r\n"))
	require.True(t, strings.HasSuffix(ics, "END:VCALENDAR\r\n"))
	require.Contains(t, ics, "UID:"+id.String()+"@bookslot\r\n")
	require.Contains(t, ics, "DTSTART:20260312T140000Z\r\n")
	require.Contains(t, ics, "DTEND:20260312T150000Z\r\n")
	require.Contains(t, ics, "LOCATION:https://meet.bookslot.dev/abc\r\n")

	// Local times are rendered in UTC.
	loc := time.FixedZone("GST", 4*3600)
	ics = BuildICS(id, start.In(loc), end.In(loc), "")
	require.Contains(t, ics, "DTSTART:20260312T140000Z\r\n")
	require.NotContains(t, ics, "LOCATION:")
}
