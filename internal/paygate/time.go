package paygate

import "time"

func formatTime(t time.Time) *string {
	s := t.UTC().Format(time.RFC3339)
	return &s
}
