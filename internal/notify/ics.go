package notify

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const icsTimeLayout = "20060102T150405Z"

// BuildICS renders the minimal VEVENT attached to confirmation emails.
func BuildICS(bookingID uuid.UUID, start, end time.Time, meetingLink string) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:-//bookslot//EN\r\n")
	b.WriteString("BEGIN:VEVENT\r\n")
	b.WriteString("UID:" + bookingID.String() + "@bookslot\r\n")
	b.WriteString("DTSTAMP:" + time.Now().UTC().Format(icsTimeLayout) + "\r\n")
	b.WriteString("DTSTART:" + start.UTC().Format(icsTimeLayout) + "\r\n")
	b.WriteString("DTEND:" + end.UTC().Format(icsTimeLayout) + "\r\n")
	b.WriteString("SUMMARY:Appointment\r\n")
	if meetingLink != "" {
		b.WriteString("LOCATION:" + meetingLink + "\r\n")
	}
	b.WriteString("END:VEVENT\r\n")
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}
