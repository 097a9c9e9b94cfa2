package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/motifd/internal/shared"
)

// HF calls a hosted-inference endpoint that answers a single POST with audio
// bytes once the model is warm. Cold models answer 202/503 and are polled;
// rate limits and server errors are retried with exponential backoff.
type HF struct {
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

// NewHF validates the descriptor and builds the provider.
// A missing token fails fast with a configuration error before any
// external request is attempted.
func NewHF(cfg shared.ProviderConfig, outDir string, retryAttempts int, logger *log.Logger) (*HF, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: hf provider requires a token", shared.ErrConfig)
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "https://api-inference.huggingface.co"
	}
	client := &http.Client{Timeout: timeoutOrDefault(cfg.TimeoutSec)}
	return &HF{
		name:       cfg.Name,
		endpoint:   endpoint,
		model:      cfg.Model,
		token:      cfg.Token,
		outDir:     outDir,
		maxSeconds: cfg.MaxSeconds,
		client:     client,
		policy:     defaultPolicy(retryAttempts),
		logger:     logger,
	}, nil
}

// Name implements [Provider].
func (h *HF) Name() string { return h.name }

// Render implements [Provider].
func (h *HF) Render(ctx context.Context, input string, params Params, progress ProgressFunc) (*Artifact, error) {
	report(progress, 5)

	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	payload, err := json.Marshal(map[string]any{
		"inputs": fmt.Sprintf("%s rendition of %s", params.Style, stem),
		"parameters": map[string]any{
			"duration":  h.maxSeconds,
			"intensity": params.Intensity,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode request: %v", shared.ErrProvider, err)
	}

	url := fmt.Sprintf("%s/models/%s", h.endpoint, h.model)
	resp, err := sendWithRetry(ctx, h.logger, h.policy, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create request: %v", shared.ErrProvider, err)
		}
		req.Header.Set("Authorization", "Bearer "+h.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := h.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Per-attempt client timeouts and connection resets are transient.
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
	report(progress, 60)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrProvider, err)
	}

	data, format, err := decodeAudio(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, err
	}
	report(progress, 85)

	duration := audioDuration(data, format, h.maxSeconds)
	return writeArtifact(h.outDir, input, format, h.name, duration, data)
}

// decodeAudio normalizes the two response shapes hosted inference produces:
// raw audio bytes, or a JSON envelope with a base64 data URL.
func decodeAudio(contentType string, body []byte) ([]byte, string, error) {
	if strings.Contains(contentType, "application/json") {
		var envelope struct {
			Audio string `json:"audio"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, "", fmt.Errorf("%w: malformed response: %v", shared.ErrProvider, err)
		}
		if envelope.Error != "" {
			return nil, "", fmt.Errorf("%w: %s", shared.ErrProvider, envelope.Error)
		}

		raw := envelope.Audio
		format := "wav"
		if idx := strings.Index(raw, ";base64,"); idx >= 0 {
			format = formatFromMime(raw[:idx])
			raw = raw[idx+len(";base64,"):]
		}
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, "", fmt.Errorf("%w: malformed audio payload: %v", shared.ErrProvider, err)
		}
		return data, format, nil
	}

	return body, formatFromMime(contentType), nil
}

func formatFromMime(mime string) string {
	switch {
	case strings.Contains(mime, "mpeg"), strings.Contains(mime, "mp3"):
		return "mp3"
	case strings.Contains(mime, "flac"):
		return "flac"
	case strings.Contains(mime, "ogg"):
		return "ogg"
	default:
		return "wav"
	}
}

// audioDuration computes the play time of a standard WAV payload from its
// byte rate header, falling back to the configured ceiling for other formats.
func audioDuration(data []byte, format string, maxSeconds int) float64 {
	if format == "wav" && len(data) > 44 && bytes.HasPrefix(data, []byte("RIFF")) {
		byteRate := binary.LittleEndian.Uint32(data[28:32])
		if byteRate > 0 {
			return float64(len(data)-44) / float64(byteRate)
		}
	}
	return float64(maxSeconds)
}

func timeoutOrDefault(seconds int) time.Duration {
	if seconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(seconds) * time.Second
}
