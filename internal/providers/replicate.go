package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/motifd/internal/shared"
)

// Replicate drives a create-prediction API: one POST registers the job, then
// the prediction is polled on a fixed interval until it settles or the wait
// ceiling fires. The finished output URL is downloaded and normalized to the
// common artifact shape.
type Replicate struct {
	name       string
	endpoint   string
	model      string
	token      string
	outDir     string
	maxSeconds int
	client     *http.Client
	policy     retryPolicy
	logger     *log.Logger
}

// NewReplicate validates the descriptor and builds the provider.
func NewReplicate(cfg shared.ProviderConfig, outDir string, retryAttempts int, logger *log.Logger) (*Replicate, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: replicate provider requires a token", shared.ErrConfig)
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "https://api.replicate.com"
	}
	return &Replicate{
		name:       cfg.Name,
		endpoint:   endpoint,
		model:      cfg.Model,
		token:      cfg.Token,
		outDir:     outDir,
		maxSeconds: cfg.MaxSeconds,
		client:     &http.Client{Timeout: timeoutOrDefault(cfg.TimeoutSec)},
		policy:     defaultPolicy(retryAttempts),
		logger:     logger,
	}, nil
}

// Name implements [Provider].
func (r *Replicate) Name() string { return r.name }

// prediction is the subset of the prediction resource the client consumes.
type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// Render implements [Provider].
func (r *Replicate) Render(ctx context.Context, input string, params Params, progress ProgressFunc) (*Artifact, error) {
	report(progress, 5)

	created, err := r.createPrediction(ctx, input, params)
	if err != nil {
		return nil, err
	}
	report(progress, 25)

	settled, err := r.waitForPrediction(ctx, created.ID, progress)
	if err != nil {
		return nil, err
	}
	report(progress, 75)

	outputURL, err := firstOutputURL(settled.Output)
	if err != nil {
		return nil, err
	}

	data, format, err := r.download(ctx, outputURL)
	if err != nil {
		return nil, err
	}
	report(progress, 90)

	duration := audioDuration(data, format, r.maxSeconds)
	return writeArtifact(r.outDir, input, format, r.name, duration, data)
}

func (r *Replicate) createPrediction(ctx context.Context, input string, params Params) (*prediction, error) {
	payload, err := json.Marshal(map[string]any{
		"version": r.model,
		"input": map[string]any{
			"prompt":    params.Style,
			"intensity": params.Intensity,
			"duration":  r.maxSeconds,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode request: %v", shared.ErrProvider, err)
	}

	resp, err := sendWithRetry(ctx, r.logger, r.policy, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/predictions", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create request: %v", shared.ErrProvider, err)
		}
		req.Header.Set("Authorization", "Token "+r.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &transient{cause: err}
		}
		if err := classify(resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var created prediction
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("%w: malformed prediction response: %v", shared.ErrProvider, err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("%w: prediction response missing id", shared.ErrProvider)
	}
	return &created, nil
}

// waitForPrediction polls the prediction until it settles. Cancellation is
// observed between poll iterations, never mid-request.
func (r *Replicate) waitForPrediction(ctx context.Context, id string, progress ProgressFunc) (*prediction, error) {
	deadline := time.Now().Add(r.policy.MaxWait)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.policy.PollInterval):
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: prediction %s did not settle within %s", shared.ErrProviderTimeout, id, r.policy.MaxWait)
		}

		current, err := r.getPrediction(ctx, id)
		if err != nil {
			return nil, err
		}

		switch current.Status {
		case "succeeded":
			return current, nil
		case "failed", "canceled":
			return nil, fmt.Errorf("%w: prediction %s: %s", shared.ErrProvider, current.Status, current.Error)
		case "starting":
			report(progress, 40)
		case "processing":
			report(progress, 60)
		}

		if r.logger != nil {
			r.logger.Debug("polling prediction", "id", id, "status", current.Status)
		}
	}
}

func (r *Replicate) getPrediction(ctx context.Context, id string) (*prediction, error) {
	resp, err := sendWithRetry(ctx, r.logger, r.policy, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/v1/predictions/"+id, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create request: %v", shared.ErrProvider, err)
		}
		req.Header.Set("Authorization", "Token "+r.token)

		resp, err := r.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &transient{cause: err}
		}
		if err := classify(resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var current prediction
	if err := json.NewDecoder(resp.Body).Decode(&current); err != nil {
		return nil, fmt.Errorf("%w: malformed prediction response: %v", shared.ErrProvider, err)
	}
	return &current, nil
}

func (r *Replicate) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to create download request: %v", shared.ErrProvider, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", fmt.Errorf("%w: failed to download output: %v", shared.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: output download returned status %d", shared.ErrProvider, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to read output: %v", shared.ErrProvider, err)
	}

	return data, formatFromMime(resp.Header.Get("Content-Type")), nil
}

// firstOutputURL extracts the artifact URL from a prediction output, which
// may be a bare string or a list of strings.
func firstOutputURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: prediction has no output", shared.ErrProvider)
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0], nil
	}

	return "", fmt.Errorf("%w: unrecognized prediction output shape", shared.ErrProvider)
}
