package llm

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// DefaultQuotaWait is used when a quota failure carries no retry hint.
const DefaultQuotaWait = 60

var (
	// ErrCredentialRevoked means the provider rejected the API key as leaked or revoked.
	// No further calls should be attempted with the same credential.
	ErrCredentialRevoked = errors.New("llm: credential revoked")

	// ErrModelNotFound is returned when the configured model id is rejected.
	ErrModelNotFound = errors.New("llm: model not found")

	// ErrProviderUnavailable is returned when neither the primary nor the fallback model is usable.
	ErrProviderUnavailable = errors.New("llm: provider unavailable")
)

// QuotaExceededError signals rate or quota limiting.
type QuotaExceededError struct {
	WaitSeconds int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("llm: quota exceeded, retry in %ds", e.WaitSeconds)
}

// ProviderError is any other non-success answer from the provider.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm: provider error (%d): %s", e.Status, e.Message)
}

// Temporary reports whether the failure is a server-side hiccup worth retrying.
func (e *ProviderError) Temporary() bool {
	return e.Status >= 500
}

var (
	retryInRe    = regexp.MustCompile(`(?i)retry in ([0-9]+(?:\.[0-9]+)?)\s*s`)
	retryDelayRe = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)s$`)
)

// DecodeFailure turns a provider status and message into one of the typed failures.
// retryDelay is the provider's structured hint (e.g. "45s") and may be empty.
// This is the only place where provider messages are pattern-matched.
func DecodeFailure(status int, message, retryDelay string) error {
	lower := strings.ToLower(message)
	switch {
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		for _, kw := range []string{"leaked", "revoked", "suspended", "compromised"} {
			if strings.Contains(lower, kw) {
				return ErrCredentialRevoked
			}
		}
		return &ProviderError{Status: status, Message: truncate(message, 200)}
	case status == http.StatusTooManyRequests || strings.Contains(lower, "resource_exhausted") || strings.Contains(lower, "quota"):
		return &QuotaExceededError{WaitSeconds: parseWait(retryDelay, message)}
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrModelNotFound, truncate(message, 200))
	default:
		return &ProviderError{Status: status, Message: truncate(message, 200)}
	}
}

func parseWait(retryDelay, message string) int {
	if m := retryDelayRe.FindStringSubmatch(strings.TrimSpace(retryDelay)); m != nil {
		if secs := ceilSeconds(m[1]); secs > 0 {
			return secs
		}
	}
	if m := retryInRe.FindStringSubmatch(message); m != nil {
		if secs := ceilSeconds(m[1]); secs > 0 {
			return secs
		}
	}
	return DefaultQuotaWait
}

func ceilSeconds(s string) int {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0
	}
	n := int(f)
	if float64(n) < f {
		n++
	}
	return n
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
