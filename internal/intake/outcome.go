package intake

import "fmt"

// Status is the terminal state of one intake attempt.
type Status string

const (
	StatusSkipped           Status = "skipped"
	StatusUploaded          Status = "uploaded"
	StatusCopiedLocally     Status = "copied_locally"
	StatusUploadedAndCopied Status = "uploaded_and_copied"
	StatusFailed            Status = "failed"
)

// SkipReason explains a Skipped outcome. Skips are not errors.
type SkipReason string

const (
	ReasonNone                 SkipReason = ""
	ReasonNotFound             SkipReason = "not_found"
	ReasonNotImage             SkipReason = "not_image"
	ReasonPreexisting          SkipReason = "preexisting"
	ReasonPluginWrite          SkipReason = "plugin_write"
	ReasonInFlight             SkipReason = "in_flight"
	ReasonNotReferenced        SkipReason = "not_referenced"
	ReasonNothingToDo          SkipReason = "nothing_to_do"
	ReasonAlreadyLocal         SkipReason = "already_local"
	ReasonConfigurationMissing SkipReason = "configuration_missing"
	ReasonSizeLimitExceeded    SkipReason = "size_limit_exceeded"
)

// Outcome is the result of one intake attempt.
type Outcome struct {
	Path   string
	Status Status
	Reason SkipReason
	Kind   ErrorKind

	// ContentHash is empty when the attempt ended before hashing.
	ContentHash string
	URL         string
	LocalPath   string
	CacheHit    bool

	// Err and Kind hold the failure for Failed outcomes. For Uploaded and
	// CopiedLocally they hold the failure of the other half, if any.
	Err error
}

func skipped(path string, reason SkipReason) Outcome {
	return Outcome{Path: path, Status: StatusSkipped, Reason: reason}
}

func failed(path string, kind ErrorKind, err error) Outcome {
	return Outcome{Path: path, Status: StatusFailed, Kind: kind, Err: err}
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusSkipped:
		return fmt.Sprintf("skipped(%s)", o.Reason)
	case StatusUploaded:
		return fmt.Sprintf("uploaded(%s)", o.URL)
	case StatusCopiedLocally:
		return fmt.Sprintf("copied_locally(%s)", o.LocalPath)
	case StatusUploadedAndCopied:
		return fmt.Sprintf("uploaded_and_copied(%s, %s)", o.URL, o.LocalPath)
	case StatusFailed:
		return fmt.Sprintf("failed(%s)", o.Kind)
	default:
		return string(o.Status)
	}
}
