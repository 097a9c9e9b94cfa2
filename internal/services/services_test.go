package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/desertthunder/motifd/internal/shared"
	ttools "github.com/desertthunder/motifd/internal/testing"
)

func mockClient(status int, body string) *Client {
	rt := ttools.NewMockRoundTripper(ttools.JSONResponse(status, body), nil)
	return NewClient("http://example.test", "alice-token", &http.Client{Transport: rt})
}

func TestSubmitParsesAcceptedEnvelope(t *testing.T) {
	client := mockClient(http.StatusAccepted,
		`{"ok":true,"result":{"task_id":"abc-123","status":"queued"}}`)

	sub, err := client.Submit(context.Background(), RenderRequest{InputPath: "outputs/demo.mid"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sub.TaskID != "abc-123" {
		t.Errorf("task id = %s, want abc-123", sub.TaskID)
	}
	if sub.Status != "queued" {
		t.Errorf("status = %s, want queued", sub.Status)
	}
}

func TestErrorCodesMapToSentinels(t *testing.T) {
	tests := []struct {
		code   string
		status int
		want   error
	}{
		{"E_AUTH", http.StatusUnauthorized, shared.ErrUnauthorized},
		{"E_FORBIDDEN", http.StatusForbidden, shared.ErrForbidden},
		{"E_QUOTA", http.StatusTooManyRequests, shared.ErrQuotaExceeded},
		{"E_VALIDATION", http.StatusBadRequest, shared.ErrValidation},
		{"E_NOT_FOUND", http.StatusNotFound, shared.ErrNotFound},
		{"E_RATE_LIMIT", http.StatusTooManyRequests, shared.ErrRateLimited},
		{"E_PROVIDER", http.StatusBadGateway, shared.ErrProvider},
		{"E_PROVIDER_TIMEOUT", http.StatusGatewayTimeout, shared.ErrProviderTimeout},
		{"E_UNAVAILABLE", http.StatusServiceUnavailable, shared.ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			body := fmt.Sprintf(`{"ok":false,"error":{"code":%q,"message":"rejected"}}`, tt.code)
			client := mockClient(tt.status, body)

			_, err := client.Task(context.Background(), "abc-123")
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUnknownCodeFallsBackToInternal(t *testing.T) {
	client := mockClient(http.StatusTeapot,
		`{"ok":false,"error":{"code":"E_MYSTERY","message":"?"}}`)

	_, err := client.Task(context.Background(), "abc-123")
	if !errors.Is(err, shared.ErrInternal) {
		t.Errorf("error = %v, want ErrInternal", err)
	}
}

func TestNonEnvelopeResponseIsInternal(t *testing.T) {
	client := mockClient(http.StatusBadGateway, `<html>gateway error</html>`)

	err := client.Health(context.Background())
	if !errors.Is(err, shared.ErrInternal) {
		t.Errorf("error = %v, want ErrInternal", err)
	}
}

func TestTaskParsesSnapshot(t *testing.T) {
	client := mockClient(http.StatusOK, `{"ok":true,"result":{
		"id":"abc-123","owner":"alice-token","status":"succeeded","progress":100,
		"result":{"audio_path":"outputs/demo_a1b2c3d4.wav","audio_url":"/outputs/demo_a1b2c3d4.wav","format":"wav","duration_sec":6,"provider":"local-synth"}
	}}`)

	task, err := client.Task(context.Background(), "abc-123")
	if err != nil {
		t.Fatalf("Task() error = %v", err)
	}
	if task.Status != "succeeded" {
		t.Errorf("status = %s, want succeeded", task.Status)
	}
	if task.Result == nil || task.Result.AudioURL == "" {
		t.Error("snapshot should carry the artifact reference")
	}
}

func TestTransportFailureSurfaces(t *testing.T) {
	rt := ttools.NewMockRoundTripper(nil, errors.New("connection refused"))
	client := NewClient("http://example.test", "", &http.Client{Transport: rt})

	if err := client.Health(context.Background()); err == nil {
		t.Error("transport failure should surface as an error")
	}
}
