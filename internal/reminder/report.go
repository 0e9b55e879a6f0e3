package reminder

import (
	"time"

	"github.com/julianstephens/habitnudge/internal/constants"
	"github.com/julianstephens/habitnudge/internal/errors"
)

// Status is the result class of one candidate
type Status string

const (
	StatusSent    Status = "sent"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// MessageKind names which reminder a delivered message was
type MessageKind string

const (
	MessagePrimary  MessageKind = "primary"
	MessageFallback MessageKind = "fallback"
	MessageFree     MessageKind = "free_daily"
)

// Outcome is what happened to one schedule (tiered) or one user (free) in a pass.
// A candidate can deliver a message and still fail afterwards, e.g. when the
// sent timestamp cannot be written back; Sent and Err are both set then.
type Outcome struct {
	Key    string
	UserID string
	Status Status
	Sent   []MessageKind
	Reason constants.SkipReason
	Err    *errors.CandidateError
}

func skipped(key, userID string, reason constants.SkipReason) Outcome {
	return Outcome{Key: key, UserID: userID, Status: StatusSkipped, Reason: reason}
}

func failed(key, userID string, sent []MessageKind, err error) Outcome {
	return Outcome{Key: key, UserID: userID, Status: StatusFailed, Sent: sent, Err: errors.Candidate(key, err)}
}

func sent(key, userID string, kinds ...MessageKind) Outcome {
	return Outcome{Key: key, UserID: userID, Status: StatusSent, Sent: kinds}
}

// Report aggregates a pass of one engine.
type Report struct {
	Engine     constants.EngineName
	Now        time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	LeaseHeld  bool
	Outcomes   []Outcome
}

func newReport(engine constants.EngineName, now time.Time) *Report {
	return &Report{
		Engine:    engine,
		Now:       now,
		StartedAt: time.Now(),
	}
}

func (r *Report) finish() *Report {
	r.FinishedAt = time.Now()
	return r
}

func (r *Report) count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

func (r *Report) Sent() int    { return r.count(StatusSent) }
func (r *Report) Skipped() int { return r.count(StatusSkipped) }
func (r *Report) Failed() int  { return r.count(StatusFailed) }

// Messages counts delivered messages, including those of failed candidates.
func (r *Report) Messages() int {
	n := 0
	for _, o := range r.Outcomes {
		n += len(o.Sent)
	}
	return n
}

// SkipReasons tallies skipped candidates by reason
func (r *Report) SkipReasons() map[constants.SkipReason]int {
	reasons := make(map[constants.SkipReason]int)
	for _, o := range r.Outcomes {
		if o.Status == StatusSkipped {
			reasons[o.Reason]++
		}
	}
	return reasons
}

// Failures returns the failed outcomes in candidate order
func (r *Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
