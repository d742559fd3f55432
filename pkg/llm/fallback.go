package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// fallbackClient retries a request once on a secondary model when the primary
// model id is rejected as not found.
type fallbackClient struct {
	primary  Client
	fallback Client
}

// WithFallback wraps primary so that ErrModelNotFound triggers exactly one attempt
// against fallback. If the fallback is also not found, ErrProviderUnavailable is returned.
func WithFallback(primary, fallback Client) Client {
	return &fallbackClient{primary: primary, fallback: fallback}
}

func (f *fallbackClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	resp, err := f.primary.Generate(ctx, req)
	if err == nil || !errors.Is(err, ErrModelNotFound) {
		return resp, err
	}

	slog.Warn("primary model not found, trying fallback model", "error", err)
	resp, err = f.fallback.Generate(ctx, req)
	if err != nil && errors.Is(err, ErrModelNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return resp, err
}

func (f *fallbackClient) Provider() Provider { return f.primary.Provider() }

func (f *fallbackClient) Close() error {
	return errors.Join(f.primary.Close(), f.fallback.Close())
}
