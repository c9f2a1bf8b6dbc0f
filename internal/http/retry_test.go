package http

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

type statusError struct{ code int }

func (e statusError) Error() string       { return fmt.Sprintf("api error, status %d", e.code) }
func (e statusError) HTTPStatusCode() int { return e.code }

func fastConfig(max int) Config {
	return Config{MaxRetries: max, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeSuccess},
		{"cancelled", context.Canceled, ErrorTypeFatal},
		{"wrapped deadline", fmt.Errorf("upload: %w", context.DeadlineExceeded), ErrorTypeFatal},
		{"s3 forbidden", statusError{403}, ErrorTypeCredential},
		{"s3 throttled", statusError{429}, ErrorTypeRetryable},
		{"s3 server error", fmt.Errorf("put: %w", statusError{503}), ErrorTypeRetryable},
		{"s3 not found", statusError{404}, ErrorTypeFatal},
		{"azure unauthorized", &azcore.ResponseError{StatusCode: 401}, ErrorTypeCredential},
		{"azure busy", &azcore.ResponseError{StatusCode: 500}, ErrorTypeRetryable},
		{"connection reset", errors.New("read tcp: connection reset by peer"), ErrorTypeNetwork},
		{"plain timeout", errors.New("timeout"), ErrorTypeNetwork},
		{"slow down", errors.New("SlowDown: please reduce your request rate"), ErrorTypeRetryable},
		{"expired token", errors.New("ExpiredToken: token has expired"), ErrorTypeCredential},
		{"unknown", errors.New("no idea"), ErrorTypeFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %s, want %s", ErrorTypeName(got), ErrorTypeName(tt.want))
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	if d := CalculateBackoff(0, time.Second, time.Minute); d != 0 {
		t.Errorf("attempt 0 backoff = %v, want 0", d)
	}
	for attempt := 1; attempt < 64; attempt++ {
		d := CalculateBackoff(attempt, 100*time.Millisecond, 2*time.Second)
		if d < 0 || d >= 2*time.Second {
			t.Fatalf("attempt %d backoff = %v, out of range", attempt, d)
		}
	}
}

func TestExecuteWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  []error
		max       int
		wantErr   bool
		wantCalls int
	}{
		{"first attempt succeeds", nil, 3, false, 1},
		{"fatal not retried", []error{errors.New("400 bad request")}, 5, true, 1},
		{"credential not retried", []error{statusError{403}}, 5, true, 1},
		{"network retried then succeeds", []error{errors.New("connection refused"), errors.New("connection refused")}, 5, false, 3},
		{"gives up", []error{errors.New("503"), errors.New("503"), errors.New("503")}, 3, true, 3},
		{"zero max still runs once", nil, 0, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			retries := 0
			cfg := fastConfig(tt.max)
			cfg.OnRetry = func(int, error, ErrorType) { retries++ }

			err := ExecuteWithRetry(context.Background(), cfg, func() error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExecuteWithRetry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr && retries >= calls {
				t.Errorf("OnRetry called %d times for %d calls", retries, calls)
			}
		})
	}
}

func TestExecuteWithRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxRetries: 5, InitialDelay: 5 * time.Second, MaxDelay: 30 * time.Second}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := ExecuteWithRetry(ctx, cfg, func() error {
		return errors.New("connection reset")
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("took %v to observe cancellation", elapsed)
	}
}

func TestExecuteWithRetry_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := ExecuteWithRetry(ctx, fastConfig(3), func() error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("operation ran %d times on a cancelled context", calls)
	}
}
