package discuss

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigError reports missing or unusable configuration. It is raised before
// any network call and is never retried.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// ValidationError reports an attachment that failed the image integrity check.
// Such attachments are dropped; the error never aborts a call.
type ValidationError struct {
	AttachmentID string
	Reason       string
	Err          error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("attachment %q is not a valid image: %s", e.AttachmentID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// BackendError wraps any failure coming from the Gemini service: transport,
// auth rejection, quota, malformed request, blocked prompt or timeout.
type BackendError struct {
	Model   string
	Message string
	Timeout bool
	Err     error
}

func (e *BackendError) Error() string {
	prefix := "gemini backend error"
	if e.Model != "" {
		prefix += " (" + e.Model + ")"
	}
	if e.Timeout {
		prefix += " [timeout]"
	}
	return prefix + ": " + e.Message
}

func (e *BackendError) Unwrap() error { return e.Err }

func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsBackendError(err error) bool {
	var target *BackendError
	return errors.As(err, &target)
}

// UserMessage turns err into the notice shown to the person whose message
// failed. Only the outermost adapter edge should call it.
func UserMessage(err error) string {
	var (
		cfgErr     *ConfigError
		backendErr *BackendError
		valErr     *ValidationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return "Gemini is not configured yet. Ask an administrator to set the API key."
	case errors.As(err, &backendErr):
		if backendErr.Timeout {
			return "Gemini did not answer in time. Please try again."
		}
		return "Gemini could not answer: " + backendErr.Message
	case errors.As(err, &valErr):
		return "The attached file could not be read as an image."
	default:
		return "Sorry, something went wrong while asking Gemini."
	}
}
