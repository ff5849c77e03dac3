package intake

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfigurationMissing means neither an upload preset nor signed credentials are set.
	ErrConfigurationMissing = errors.New("no upload preset or signed credentials configured")

	// ErrSizeLimitExceeded means the asset is larger than the auto-upload limit.
	ErrSizeLimitExceeded = errors.New("asset exceeds the auto-upload size limit")

	// ErrHashingUnavailable means the content digest could not be computed.
	ErrHashingUnavailable = errors.New("content hashing unavailable")

	// ErrPresetProvisioningFailed means the remote preset could not be created.
	ErrPresetProvisioningFailed = errors.New("upload preset provisioning failed")

	// ErrPresetExists is returned by PresetCreator when the name is already taken.
	ErrPresetExists = errors.New("upload preset already exists")
)

// RejectionClass sub-classifies a rejected upload for more actionable messages.
type RejectionClass int

const (
	RejectionGeneric RejectionClass = iota
	RejectionPresetConfig
	RejectionSignature
)

func (c RejectionClass) String() string {
	switch c {
	case RejectionPresetConfig:
		return "preset"
	case RejectionSignature:
		return "signature"
	default:
		return "generic"
	}
}

// UploadRejectedError reports a non-2xx response from the media host.
type UploadRejectedError struct {
	Status  int
	Message string
	Class   RejectionClass
}

// NewUploadRejectedError builds an UploadRejectedError, classifying the remote message.
func NewUploadRejectedError(status int, message string) *UploadRejectedError {
	return &UploadRejectedError{
		Status:  status,
		Message: message,
		Class:   ClassifyRejection(message),
	}
}

func (e *UploadRejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upload rejected with status %d", e.Status)
	}
	return fmt.Sprintf("upload rejected with status %d: %s", e.Status, e.Message)
}

var (
	presetPatterns    = []string{"upload preset", "preset", "unsigned"}
	signaturePatterns = []string{"signature", "api_key", "api key", "api secret", "invalid credentials", "unauthorized"}
)

// ClassifyRejection matches a remote error message against known problem classes.
func ClassifyRejection(message string) RejectionClass {
	m := strings.ToLower(message)
	for _, p := range presetPatterns {
		if strings.Contains(m, p) {
			return RejectionPresetConfig
		}
	}
	for _, p := range signaturePatterns {
		if strings.Contains(m, p) {
			return RejectionSignature
		}
	}
	return RejectionGeneric
}

// ErrorKind labels the failure behind a Failed outcome.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindUploadRejected     ErrorKind = "upload_rejected"
	KindUploadFailed       ErrorKind = "upload_failed"
	KindHashingUnavailable ErrorKind = "hashing_unavailable"
	KindFilesystem         ErrorKind = "filesystem"
	KindInternal           ErrorKind = "internal"
)

// kindOfUploadError distinguishes remote rejections from transport failures.
func kindOfUploadError(err error) ErrorKind {
	var rejected *UploadRejectedError
	if errors.As(err, &rejected) {
		return KindUploadRejected
	}
	return KindUploadFailed
}
