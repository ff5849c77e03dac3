package app

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"attach-go/internal/intake"
)

// Operation tracks one CLI invocation: its log identifier and a tally of
// the intake outcomes it produced.
type Operation struct {
	ID        string
	Command   string
	StartedAt time.Time

	mu     sync.Mutex
	counts map[intake.Status]int
	failed bool
}

var _ intake.Observer = (*Operation)(nil)

// NewOperation creates an operation for command started at now.
// The ID doubles as the log operation id.
func NewOperation(command string, now time.Time) *Operation {
	return &Operation{
		ID:        now.UTC().Format("20060102T150405Z"),
		Command:   command,
		StartedAt: now,
		counts:    make(map[intake.Status]int),
	}
}

func (op *Operation) ObserveOutcome(out intake.Outcome) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.counts[out.Status]++
	if out.Status == intake.StatusFailed {
		op.failed = true
	}
}

func (op *Operation) ObserveUpload(time.Duration, int64, error) {}
func (op *Operation) UploadsInFlight(int)                       {}

// Count returns how many outcomes of status were observed.
func (op *Operation) Count(status intake.Status) int {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.counts[status]
}

// Status returns "error" if any intake failed, otherwise "success".
func (op *Operation) Status() string {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.failed {
		return "error"
	}
	return "success"
}

// Summary renders the tally as "status=n" pairs in a stable order.
func (op *Operation) Summary() string {
	op.mu.Lock()
	defer op.mu.Unlock()

	if len(op.counts) == 0 {
		return "no intakes"
	}
	parts := make([]string, 0, len(op.counts))
	for status, n := range op.counts {
		parts = append(parts, fmt.Sprintf("%s=%d", status, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

// observers fans measurements out to several observers.
type observers []intake.Observer

func (o observers) ObserveOutcome(out intake.Outcome) {
	for _, x := range o {
		x.ObserveOutcome(out)
	}
}

func (o observers) ObserveUpload(elapsed time.Duration, size int64, err error) {
	for _, x := range o {
		x.ObserveUpload(elapsed, size, err)
	}
}

func (o observers) UploadsInFlight(delta int) {
	for _, x := range o {
		x.UploadsInFlight(delta)
	}
}
