// package providers implements the uniform client over heterogeneous audio renderers.
//
// A Provider turns a MIDI input into an audio artifact. The local synthesizer
// never touches the network and never fails for availability reasons, making
// it the default under test and in offline development. Remote providers own
// their retry, backoff and warm-up polling policy; callers only ever see the
// final outcome.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/motifd/internal/shared"
)

// Params are rendering knobs passed through from the caller.
// Opaque to the scheduler.
type Params struct {
	Style     string  `json:"style"`
	Intensity float64 `json:"intensity"`
}

// Artifact is the normalized result shape shared by every provider,
// regardless of which audio container the provider returned.
type Artifact struct {
	Path        string  `json:"path"`
	URL         string  `json:"url"`
	Format      string  `json:"format"`
	DurationSec float64 `json:"duration_sec"`
	Provider    string  `json:"provider"`
}

// ProgressFunc receives best-effort progress in the range 0..100.
type ProgressFunc func(percent int)

// Provider renders MIDI input into an audio artifact.
type Provider interface {
	Name() string
	Render(ctx context.Context, input string, params Params, progress ProgressFunc) (*Artifact, error)
}

// New constructs the provider selected by cfg. Artifacts are written under
// outDir. retryAttempts bounds remote retry loops; it is ignored by the
// local synthesizer.
func New(cfg shared.ProviderConfig, outDir string, retryAttempts int, logger *log.Logger) (Provider, error) {
	switch cfg.Kind {
	case "local":
		return NewLocal(cfg, outDir, logger), nil
	case "hf":
		return NewHF(cfg, outDir, retryAttempts, logger)
	case "replicate":
		return NewReplicate(cfg, outDir, retryAttempts, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider kind %q", shared.ErrInvalidConfig, cfg.Kind)
	}
}

// report invokes progress when non-nil, clamping to 0..100.
func report(progress ProgressFunc, percent int) {
	if progress == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	progress(percent)
}

// writeArtifact persists audio bytes under dir and returns the normalized
// artifact. The file name derives from the input stem so operators can trace
// outputs back to their MIDI.
func writeArtifact(dir, input, format, provider string, duration float64, data []byte) (*Artifact, error) {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if stem == "" {
		stem = "track"
	}
	name := fmt.Sprintf("%s_%s.%s", stem, shared.GenerateID()[:8], format)
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("%w: failed to write artifact: %v", shared.ErrProvider, err)
	}

	return &Artifact{
		Path:        path,
		URL:         "/outputs/" + name,
		Format:      format,
		DurationSec: duration,
		Provider:    provider,
	}, nil
}

// retryPolicy drives sendWithRetry. Rate-limit and server-error responses
// back off exponentially up to Attempts; warm-up responses poll on a fixed
// interval until MaxWait.
type retryPolicy struct {
	Attempts     int
	BaseDelay    time.Duration
	PollInterval time.Duration
	MaxWait      time.Duration
}

func defaultPolicy(attempts int) retryPolicy {
	if attempts < 1 {
		attempts = 4
	}
	return retryPolicy{
		Attempts:     attempts,
		BaseDelay:    500 * time.Millisecond,
		PollInterval: 2 * time.Second,
		MaxWait:      2 * time.Minute,
	}
}

// transient marks a retryable failure observed on one attempt.
type transient struct {
	warming bool
	cause   error
}

// sendWithRetry invokes send until it returns a terminal outcome.
//
// send classifies its own response: returning (resp, nil) ends the loop,
// a *transient error schedules another attempt, anything else is fatal.
// Cancellation is observed at every checkpoint between attempts; an
// in-flight HTTP call is never interrupted, only abandoned at the next
// boundary.
func sendWithRetry(ctx context.Context, logger *log.Logger, policy retryPolicy, send func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	deadline := time.Now().Add(policy.MaxWait)
	delay := policy.BaseDelay
	attempt := 0

	var lastCause error
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := send(ctx)
		if err == nil {
			return resp, nil
		}

		var tr *transient
		if !errors.As(err, &tr) {
			return nil, err
		}
		lastCause = tr.cause

		var wait time.Duration
		if tr.warming {
			// Cold-starting model: fixed-interval poll bounded by the ceiling.
			if time.Now().Add(policy.PollInterval).After(deadline) {
				return nil, fmt.Errorf("%w: provider still warming up after %s: %v", shared.ErrProviderTimeout, policy.MaxWait, lastCause)
			}
			wait = policy.PollInterval
		} else {
			attempt++
			if attempt >= policy.Attempts {
				return nil, fmt.Errorf("%w: %d attempts exhausted: %v", shared.ErrProvider, attempt, lastCause)
			}
			wait = delay
			delay *= 2
		}

		if logger != nil {
			logger.Debug("retrying provider call", "attempt", attempt, "warming", tr.warming, "wait", wait, "cause", tr.cause)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// classify converts an HTTP status into the retry decision for that attempt.
// 200 is success; 202 and 503 mean the model is still warming; 429 and other
// 5xx are transient; everything else is a hard provider error.
func classify(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusServiceUnavailable:
		resp.Body.Close()
		return &transient{warming: true, cause: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		resp.Body.Close()
		return &transient{cause: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		resp.Body.Close()
		return fmt.Errorf("%w: unexpected status %d", shared.ErrProvider, resp.StatusCode)
	}
}

func (t *transient) Error() string {
	if t.warming {
		return fmt.Sprintf("warming up: %v", t.cause)
	}
	return fmt.Sprintf("transient failure: %v", t.cause)
}
