package http

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
)

// ErrorType classifies an upload failure for the retry loop.
type ErrorType int

const (
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeCredential is an authentication or authorization failure.
	ErrorTypeCredential
	// ErrorTypeNetwork is a connection level failure (reset, refused, timeout).
	ErrorTypeNetwork
	// ErrorTypeRetryable is a throttling or server side failure.
	ErrorTypeRetryable
	// ErrorTypeFatal is anything else. It is never retried.
	ErrorTypeFatal
)

// Config holds retry parameters for ExecuteWithRetry.
type Config struct {
	// MaxRetries is the total number of attempts.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, err error, errorType ErrorType)
}

// DefaultConfig returns the retry settings used for archive uploads.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   constants.HTTPRetryMax,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     constants.HTTPRetryWaitMax,
	}
}

// statusCoder matches smithy-go response errors returned by the AWS SDK.
type statusCoder interface {
	HTTPStatusCode() int
}

// ClassifyError decides how ExecuteWithRetry treats err. Typed SDK errors are
// classified by status code; everything else falls back to message matching.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeFatal
	}

	var azErr *azcore.ResponseError
	if errors.As(err, &azErr) {
		return classifyStatus(azErr.StatusCode)
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return classifyStatus(sc.HTTPStatusCode())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTypeNetwork
	}

	return classifyMessage(strings.ToLower(err.Error()))
}

func classifyStatus(code int) ErrorType {
	switch {
	case code == nethttp.StatusUnauthorized || code == nethttp.StatusForbidden:
		return ErrorTypeCredential
	case code == nethttp.StatusRequestTimeout || code == nethttp.StatusTooManyRequests:
		return ErrorTypeRetryable
	case code >= 500:
		return ErrorTypeRetryable
	default:
		return ErrorTypeFatal
	}
}

var (
	credentialMarkers = []string{
		"expiredtoken", "invalid token", "unauthorized", "403",
		"authenticationfailed", "authentication failed", "signature not valid",
		"signaturedoesnotmatch", "invalidaccesskeyid", "authorization failure",
	}
	networkMarkers = []string{
		"connection reset", "connection refused", "broken pipe",
		"tls handshake timeout", "i/o timeout", "unexpected eof", "no such host",
	}
	retryableMarkers = []string{
		"requesttimeout", "internalerror", "serviceunavailable", "slowdown",
		"throttl", "serverbusy", "server busy", "operationtimeout",
		"429", "500", "502", "503", "504",
	}
)

func classifyMessage(msg string) ErrorType {
	switch {
	case containsAny(msg, credentialMarkers):
		return ErrorTypeCredential
	case containsAny(msg, networkMarkers), strings.Contains(msg, "timeout"):
		return ErrorTypeNetwork
	case containsAny(msg, retryableMarkers):
		return ErrorTypeRetryable
	default:
		return ErrorTypeFatal
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// CalculateBackoff returns an exponential backoff with full jitter:
// random(0, min(maxDelay, initialDelay * 2^attempt)). Attempt 0 has no delay.
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}
	base := maxDelay
	if attempt < 30 {
		if d := initialDelay << uint(attempt); d > 0 && d < maxDelay {
			base = d
		}
	}
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(base)))
}

// ExecuteWithRetry runs operation up to config.MaxRetries times. Network and
// server errors are retried with backoff; credential and fatal errors return
// at once. Cancelling ctx interrupts the backoff sleep.
func ExecuteWithRetry(ctx context.Context, config Config, operation func() error) error {
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		errType := ClassifyError(err)
		switch errType {
		case ErrorTypeCredential:
			return fmt.Errorf("credential error: %w", err)
		case ErrorTypeNetwork, ErrorTypeRetryable:
			if attempt == config.MaxRetries-1 {
				break
			}
			if config.OnRetry != nil {
				config.OnRetry(attempt+1, err, errType)
			}
			if err := sleepContext(ctx, CalculateBackoff(attempt, config.InitialDelay, config.MaxDelay)); err != nil {
				return err
			}
		default:
			return err
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ErrorTypeName returns a short name for logging.
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeCredential:
		return "credential"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
