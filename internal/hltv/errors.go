package hltv

import (
	"errors"
	"fmt"
	"strings"
)

// BlockedError reports that a loaded page was classified as an anti-bot
// challenge. Signals carries the names of the classifier signals that
// matched, for diagnosis and retry bookkeeping.
type BlockedError struct {
	URL     string
	Signals []string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked page at %s (signals: %s)", e.URL, strings.Join(e.Signals, ", "))
}

// TransientError wraps a network or timeout failure that is worth
// retrying with backoff.
type TransientError struct {
	URL string
	Err error
}

func (e *TransientError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("transient fetch failure at %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("transient fetch failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ExtractionError reports a structurally invalid or unidentifiable
// record. Retrying with the same inputs would reproduce it, so it is
// never retried.
type ExtractionError struct {
	Kind    PageKind
	URL     string
	Missing string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s page %s: missing %s", e.Kind, e.URL, e.Missing)
}

// PersistenceError wraps a store failure. Connectivity-level failures
// escalate the whole run; constraint violations stay unit-level.
type PersistenceError struct {
	Err          error
	Connectivity bool
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsBlocked reports whether err is a blocked-page classification.
func IsBlocked(err error) bool {
	var be *BlockedError
	return errors.As(err, &be)
}

// IsTransient reports whether err is a retryable fetch failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRetryable reports whether the load should be retried with backoff.
func IsRetryable(err error) bool {
	return IsBlocked(err) || IsTransient(err)
}

// IsExtraction reports whether err is an extraction failure.
func IsExtraction(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}

// IsConnectivity reports whether err is a store-unreachable failure
// that must fail the whole run.
func IsConnectivity(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Connectivity
}

// ErrorURL returns the page URL carried by err, if any, so failed
// loads stay attributable to a concrete address.
func ErrorURL(err error) string {
	var be *BlockedError
	if errors.As(err, &be) {
		return be.URL
	}
	var te *TransientError
	if errors.As(err, &te) {
		return te.URL
	}
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.URL
	}
	return ""
}

// BlockedSignals returns the classifier signals carried by err, if any.
func BlockedSignals(err error) []string {
	var be *BlockedError
	if errors.As(err, &be) {
		return be.Signals
	}
	return nil
}
