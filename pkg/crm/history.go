package crm

import "fmt"

// AppendRecording returns a copy of lead with rec placed first in its
// history and LastActivity describing the call. If a recording with the
// same ID is already present the lead is returned unchanged and ok is
// false, so retried commits never duplicate history.
func AppendRecording(lead *Lead, rec Recording) (next *Lead, ok bool) {
	for _, r := range lead.Recordings {
		if r.ID == rec.ID {
			return lead.Clone(), false
		}
	}
	next = lead.Clone()
	next.Recordings = append([]Recording{rec}, lead.Recordings...)
	next.LastActivity = fmt.Sprintf("Call recorded (%s, %ds)", rec.Outcome, rec.DurationSeconds)
	next.UpdatedAt = rec.CapturedAt
	return next, true
}
