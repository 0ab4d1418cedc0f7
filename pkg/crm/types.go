// Package crm holds the lead, task, and call recording entities the call
// manager hands off to, together with the stores that persist them.
package crm

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eburon/brokerdial/pkg/jsontime"
)

// Outcome classifies a reviewed call recording.
type Outcome string

const (
	OutcomeConnected Outcome = "connected"
	OutcomeMissed    Outcome = "missed"
	OutcomeVoicemail Outcome = "voicemail"
	OutcomeFollowUp  Outcome = "follow_up"
	OutcomeClosed    Outcome = "closed"
)

// ErrUnknownOutcome is returned for outcomes outside the closed set.
var ErrUnknownOutcome = errors.New("crm: unknown outcome")

// Outcomes lists every valid outcome in display order.
var Outcomes = []Outcome{
	OutcomeConnected,
	OutcomeMissed,
	OutcomeVoicemail,
	OutcomeFollowUp,
	OutcomeClosed,
}

// ParseOutcome returns the outcome named s. "follow-up" is accepted as an
// alias of follow_up.
func ParseOutcome(s string) (Outcome, error) {
	if s == "follow-up" {
		return OutcomeFollowUp, nil
	}
	for _, o := range Outcomes {
		if string(o) == s {
			return o, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownOutcome, s)
}

// UnmarshalJSON rejects outcomes outside the closed set.
func (o *Outcome) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseOutcome(s)
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Status of a lead in the sales funnel.
type Status string

const (
	StatusNew       Status = "New"
	StatusContacted Status = "Contacted"
	StatusQualified Status = "Qualified"
	StatusLost      Status = "Lost"
)

// Interest is what a lead is looking for.
type Interest string

const (
	InterestBuying     Interest = "Buying"
	InterestRenting    Interest = "Renting"
	InterestSelling    Interest = "Selling"
	InterestManagement Interest = "Management"
)

// Recording is a reviewed call recording attached to a lead. It is never
// modified after creation.
type Recording struct {
	ID              string         `json:"id" msgpack:"id" yaml:"id"`
	CapturedAt      jsontime.Milli `json:"capturedAt" msgpack:"captured_at" yaml:"-"`
	DurationSeconds int            `json:"durationSeconds" msgpack:"duration" yaml:"durationSeconds"`
	ArtifactHandle  string         `json:"artifactHandle" msgpack:"artifact" yaml:"artifactHandle"`
	Outcome         Outcome        `json:"outcome" msgpack:"outcome" yaml:"outcome"`
}

// Lead is a prospective client.
type Lead struct {
	ID           string         `json:"id" msgpack:"id" yaml:"id"`
	FirstName    string         `json:"firstName" msgpack:"first_name" yaml:"firstName"`
	LastName     string         `json:"lastName" msgpack:"last_name" yaml:"lastName"`
	Phone        string         `json:"phone" msgpack:"phone" yaml:"phone"`
	Email        string         `json:"email" msgpack:"email" yaml:"email"`
	Status       Status         `json:"status" msgpack:"status" yaml:"status"`
	Interest     Interest       `json:"interest" msgpack:"interest" yaml:"interest"`
	LastActivity string         `json:"lastActivity" msgpack:"last_activity" yaml:"lastActivity"`
	Notes        string         `json:"notes" msgpack:"notes" yaml:"notes"`
	UpdatedAt    jsontime.Milli `json:"updatedAt" msgpack:"updated_at" yaml:"-"`
	Recordings   []Recording    `json:"recordings" msgpack:"recordings" yaml:"recordings,omitempty"`
}

// Name returns "First Last".
func (l *Lead) Name() string {
	switch {
	case l.FirstName == "":
		return l.LastName
	case l.LastName == "":
		return l.FirstName
	}
	return l.FirstName + " " + l.LastName
}

// Clone returns a deep copy of the lead.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}
	v := *l
	if l.Recordings != nil {
		v.Recordings = append([]Recording(nil), l.Recordings...)
	}
	return &v
}

// Task is a to-do item for the broker, usually linked to a lead.
type Task struct {
	ID        string         `json:"id" msgpack:"id"`
	Title     string         `json:"title" msgpack:"title"`
	DueDate   jsontime.Milli `json:"dueDate" msgpack:"due"`
	Priority  Priority       `json:"priority" msgpack:"priority"`
	LeadID    string         `json:"leadId,omitempty" msgpack:"lead_id,omitempty"`
	LeadName  string         `json:"leadName,omitempty" msgpack:"lead_name,omitempty"`
	Completed bool           `json:"completed" msgpack:"completed"`
	CreatedAt jsontime.Milli `json:"createdAt" msgpack:"created_at"`
}

// Overdue reports whether an open task is past its due date at now.
func (t *Task) Overdue(now time.Time) bool {
	return !t.Completed && t.DueDate.Time().Before(now)
}
