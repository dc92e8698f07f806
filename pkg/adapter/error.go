package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

var (
	// ErrNoText is returned when a provider answered without usable text.
	ErrNoText = errors.New("provider returned no text")

	// ErrMalformedParams is returned when the structured-parameter output
	// cannot be decoded.
	ErrMalformedParams = errors.New("malformed search parameters")
)

// AdapterError wraps provider errors with status metadata.
type AdapterError struct {
	Provider  string
	Status    int
	Temporary bool
	Err       error
}

func (e *AdapterError) Error() string {
	if e == nil {
		return "adapter error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: adapter error (status=%d)", e.Provider, e.Status)
}

func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether an error is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		if adapterErr.Temporary {
			return true
		}
		if adapterErr.Status == 429 || (adapterErr.Status >= 500 && adapterErr.Status <= 599) {
			return true
		}
	}
	return false
}

// wrapError attaches the provider name and, when the SDK exposes one, the
// HTTP status to err. Network timeouts are marked temporary.
func wrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var existing *AdapterError
	if errors.As(err, &existing) {
		return err
	}

	status := 0
	var openaiErr *openai.Error
	var anthropicErr *anthropic.Error
	var genaiErr genai.APIError
	switch {
	case errors.As(err, &openaiErr):
		status = openaiErr.StatusCode
	case errors.As(err, &anthropicErr):
		status = anthropicErr.StatusCode
	case errors.As(err, &genaiErr):
		status = genaiErr.Code
	}
	var netErr net.Error
	temporary := errors.As(err, &netErr) && netErr.Timeout()
	return &AdapterError{Provider: provider, Status: status, Temporary: temporary, Err: err}
}
