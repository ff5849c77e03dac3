package intake

import "time"

// Notifier shows short human-readable messages to the user.
type Notifier interface {
	Notify(msg string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

// Hasher computes the content digest used as an asset's durable identity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IntakeRecord is the persisted summary of one intake attempt.
type IntakeRecord struct {
	ID          string
	Path        string
	ContentHash string
	Status      Status
	Reason      SkipReason
	ErrorKind   ErrorKind
	URL         string
	LocalPath   string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// History stores intake records.
type History interface {
	RecordIntake(rec *IntakeRecord) error
}

type nopHistory struct{}

func (nopHistory) RecordIntake(*IntakeRecord) error { return nil }

// Observer receives intake and upload measurements.
type Observer interface {
	ObserveOutcome(out Outcome)
	ObserveUpload(elapsed time.Duration, size int64, err error)
	UploadsInFlight(delta int)
}

type nopObserver struct{}

func (nopObserver) ObserveOutcome(Outcome)                    {}
func (nopObserver) ObserveUpload(time.Duration, int64, error) {}
func (nopObserver) UploadsInFlight(int)                       {}
