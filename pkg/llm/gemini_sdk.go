package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

// geminiSDKClient implements Client on top of the official Gemini Go SDK.
type geminiSDKClient struct {
	cfg    Config
	client *genai.Client
}

func newGeminiSDKClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini sdk client: %w", err)
	}
	return wrapWithRetry(&geminiSDKClient{cfg: cfg, client: client}, cfg.MaxRetries), nil
}

func (c *geminiSDKClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	model := c.client.GenerativeModel(c.cfg.Model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if tokens := firstPositive(req.MaxTokens, c.cfg.MaxTokens); tokens > 0 {
		model.SetMaxOutputTokens(int32(tokens))
	}
	if temp := firstPositiveFloat(req.Temperature, c.cfg.Temperature); temp > 0 {
		model.SetTemperature(float32(temp))
	}
	if req.JSONMode {
		model.ResponseMIMEType = "application/json"
	}

	parts := make([]genai.Part, 0, len(req.Messages))
	for _, m := range req.Messages {
		parts = append(parts, genai.Text(m.Content))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, decodeSDKError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no content in gemini response")
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}

	out := &Response{
		Content:      sb.String(),
		FinishReason: resp.Candidates[0].FinishReason.String(),
		Model:        c.cfg.Model,
		LatencyMs:    time.Since(start).Milliseconds(),
	}
	if resp.UsageMetadata != nil {
		out.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		out.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
		out.Cost = EstimateCost(c.cfg.Model, out.TokensIn, out.TokensOut)
	}
	return out, nil
}

func (c *geminiSDKClient) Provider() Provider { return GeminiSDK }
func (c *geminiSDKClient) Close() error       { return c.client.Close() }

// decodeSDKError maps SDK transport errors onto typed failures.
func decodeSDKError(err error) error {
	var apiErr *apierror.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("send request: %w", err)
	}

	status := apiErr.HTTPCode()
	if status <= 0 {
		status = grpcToHTTP(apiErr.GRPCStatus().Code())
	}
	var retryDelay string
	if ri := apiErr.Details().RetryInfo; ri != nil && ri.GetRetryDelay() != nil {
		retryDelay = fmt.Sprintf("%ds", ri.GetRetryDelay().GetSeconds())
	}
	message := apiErr.Error()
	if reason := apiErr.Reason(); reason != "" {
		message += " (" + reason + ")"
	}
	return DecodeFailure(status, message, retryDelay)
}

func grpcToHTTP(code codes.Code) int {
	switch code {
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.NotFound:
		return http.StatusNotFound
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveFloat(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
