package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient_InvalidProvider(t *testing.T) {
	_, err := NewClient(Config{Provider: "invalid", APIKey: "test"})
	if err == nil {
		t.Fatal("expected error for invalid provider")
	}
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	for _, p := range []Provider{OpenAI, Gemini, GeminiSDK} {
		_, err := NewClient(Config{Provider: p})
		if err == nil {
			t.Fatalf("expected error for %s without API key", p)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Provider != Gemini {
		t.Fatalf("expected gemini, got %s", cfg.Provider)
	}
	if cfg.FallbackModel == "" || cfg.FallbackModel == cfg.Model {
		t.Fatalf("expected a distinct fallback model, got %q", cfg.FallbackModel)
	}
}

func TestEstimateCost(t *testing.T) {
	cost := EstimateCost("gpt-4o-mini", 1000, 500)
	// gpt-4o-mini: $0.15/1M in, $0.60/1M out
	expected := 0.00015 + 0.0003
	if cost < expected*0.9 || cost > expected*1.1 {
		t.Fatalf("cost %f not in expected range around %f", cost, expected)
	}
	if EstimateCost("unknown-model", 1000, 500) != 0 {
		t.Fatal("expected 0 cost for unknown model")
	}
}

func TestDecodeFailure(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		message  string
		delay    string
		check    func(error) bool
		wantWait int
	}{
		{"leaked key", 403, "Your API key was reported as leaked. Please use another API key.", "", func(err error) bool { return errors.Is(err, ErrCredentialRevoked) }, 0},
		{"plain forbidden", 403, "permission denied", "", func(err error) bool {
			var pe *ProviderError
			return errors.As(err, &pe) && pe.Status == 403
		}, 0},
		{"quota with structured delay", 429, "Resource has been exhausted", "45s", nil, 45},
		{"quota with message hint", 429, "Quota exceeded. Please retry in 12.3s.", "", nil, 13},
		{"quota default wait", 429, "Too many requests", "", nil, DefaultQuotaWait},
		{"not found", 404, "models/gemini-x is not found", "", func(err error) bool { return errors.Is(err, ErrModelNotFound) }, 0},
		{"server error", 503, "overloaded", "", func(err error) bool {
			var pe *ProviderError
			return errors.As(err, &pe) && pe.Temporary()
		}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DecodeFailure(tt.status, tt.message, tt.delay)
			if tt.wantWait > 0 {
				var qe *QuotaExceededError
				if !errors.As(err, &qe) {
					t.Fatalf("expected QuotaExceededError, got %v", err)
				}
				if qe.WaitSeconds != tt.wantWait {
					t.Fatalf("expected wait %d, got %d", tt.wantWait, qe.WaitSeconds)
				}
				return
			}
			if !tt.check(err) {
				t.Fatalf("unexpected classification: %v", err)
			}
		})
	}
}

func TestDecodeFailure_TruncatesMessage(t *testing.T) {
	err := DecodeFailure(500, strings.Repeat("x", 500), "")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if len(pe.Message) > 203 {
		t.Fatalf("message not truncated: %d chars", len(pe.Message))
	}
}

// TestRetryClient_NoRetryOnSuccess verifies no retry happens on success.
func TestRetryClient_NoRetryOnSuccess(t *testing.T) {
	calls := 0
	mock := &mockClient{
		generateFn: func(ctx context.Context, req *Request) (*Response, error) {
			calls++
			return &Response{Content: "hello"}, nil
		},
	}
	rc := wrapWithRetry(mock, 3)
	resp, err := rc.Generate(context.Background(), &Request{
		Messages: []Message{{Role: "user", Content: "test"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hello" {
		t.Fatalf("expected 'hello', got '%s'", resp.Content)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryClient_RetriesServerErrors(t *testing.T) {
	calls := 0
	mock := &mockClient{
		generateFn: func(ctx context.Context, req *Request) (*Response, error) {
			calls++
			if calls < 3 {
				return nil, &ProviderError{Status: 503, Message: "unavailable"}
			}
			return &Response{Content: "ok"}, nil
		},
	}
	rc := &retryClient{inner: mock, maxRetries: 3, baseDelay: time.Millisecond}
	if _, err := rc.Generate(context.Background(), &Request{}); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryClient_NeverRetriesQuota(t *testing.T) {
	calls := 0
	mock := &mockClient{
		generateFn: func(ctx context.Context, req *Request) (*Response, error) {
			calls++
			return nil, &QuotaExceededError{WaitSeconds: 30}
		},
	}
	rc := &retryClient{inner: mock, maxRetries: 3, baseDelay: time.Millisecond}
	_, err := rc.Generate(context.Background(), &Request{})
	var qe *QuotaExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestFallback_UsesSecondModelOnNotFound(t *testing.T) {
	primary := &mockClient{generateFn: func(ctx context.Context, req *Request) (*Response, error) {
		return nil, DecodeFailure(404, "model not found", "")
	}}
	secondary := &mockClient{generateFn: func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{Content: "from fallback"}, nil
	}}
	resp, err := WithFallback(primary, secondary).Generate(context.Background(), &Request{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "from fallback" {
		t.Fatalf("unexpected content %q", resp.Content)
	}
}

func TestFallback_BothMissingIsUnavailable(t *testing.T) {
	notFound := func(ctx context.Context, req *Request) (*Response, error) {
		return nil, DecodeFailure(404, "model not found", "")
	}
	_, err := WithFallback(&mockClient{generateFn: notFound}, &mockClient{generateFn: notFound}).
		Generate(context.Background(), &Request{})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestFallback_PassesOtherErrorsThrough(t *testing.T) {
	secondaryCalls := 0
	primary := &mockClient{generateFn: func(ctx context.Context, req *Request) (*Response, error) {
		return nil, &QuotaExceededError{WaitSeconds: 10}
	}}
	secondary := &mockClient{generateFn: func(ctx context.Context, req *Request) (*Response, error) {
		secondaryCalls++
		return &Response{}, nil
	}}
	_, err := WithFallback(primary, secondary).Generate(context.Background(), &Request{})
	var qe *QuotaExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if secondaryCalls != 0 {
		t.Fatal("fallback must not be called for quota errors")
	}
}

func TestGemini_DecodesErrorsAndFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case strings.Contains(r.URL.Path, "/models/primary:"):
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":404,"message":"models/primary is not found","status":"NOT_FOUND"}}`))
		case strings.Contains(r.URL.Path, "/models/backup:"):
			w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"ok\":true}"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2}}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED","details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"45s"}]}}`))
		}
	}))
	defer srv.Close()

	client, err := NewClient(Config{Provider: Gemini, Model: "primary", FallbackModel: "backup", APIKey: "k", BaseURL: srv.URL, MaxRetries: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	resp, err := client.Generate(context.Background(), &Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != `{"ok":true}` || resp.Model != "backup" {
		t.Fatalf("unexpected response %+v", resp)
	}

	quota, err := NewClient(Config{Provider: Gemini, Model: "limited", APIKey: "k", BaseURL: srv.URL, MaxRetries: 1})
	if err != nil {
		t.Fatal(err)
	}
	_, err = quota.Generate(context.Background(), &Request{})
	var qe *QuotaExceededError
	if !errors.As(err, &qe) || qe.WaitSeconds != 45 {
		t.Fatalf("expected 45s quota error, got %v", err)
	}
}

type mockClient struct {
	generateFn func(ctx context.Context, req *Request) (*Response, error)
}

var _ Client = (*mockClient)(nil)

func (m *mockClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	return m.generateFn(ctx, req)
}
func (m *mockClient) Provider() Provider { return "mock" }
func (m *mockClient) Close() error       { return nil }

func TestStripThinkTags(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no tags", "Hello world", "Hello world"},
		{"with think tags", "<think>reasoning here</think>Actual response", "Actual response"},
		{"multiline think", "<think>\nstep 1\nstep 2\n</think>\nFinal answer", "Final answer"},
		{"empty content", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripThinkTags(tt.input)
			if got != tt.expected {
				t.Errorf("stripThinkTags(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
