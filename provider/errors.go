package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrEmbedding marks a failure while computing an embedding.
	ErrEmbedding = errors.New("embedding failed")

	// ErrGeneration marks a failure while generating text.
	ErrGeneration = errors.New("generation failed")

	// ErrTimeout marks a provider call that exceeded its deadline.
	ErrTimeout = errors.New("provider timed out")
)

// ErrUnavailable indicates the provider endpoint could not be reached.
//
// The transport error (if any) can be accessed via errors.Unwrap.
type ErrUnavailable struct {
	Provider string
	Endpoint string
	Cause    error
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("provider %s is unreachable at %s", e.Provider, e.Endpoint)
}

func (e *ErrUnavailable) Unwrap() error { return e.Cause }

// ErrModelUnavailable indicates the requested model is not installed on the
// provider. Available lists the models the provider reported instead.
type ErrModelUnavailable struct {
	Model     string
	Available []string
}

func (e *ErrModelUnavailable) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("model %s is not available", e.Model)
	}
	return fmt.Sprintf("model %s is not available (installed: %s)", e.Model, strings.Join(e.Available, ", "))
}

// ClassifyTransportError maps a transport-level failure to the taxonomy:
// deadline and timeout errors become ErrTimeout, everything else becomes
// ErrUnavailable for the given provider and endpoint.
func ClassifyTransportError(providerName, endpoint string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s at %s", ErrTimeout, providerName, endpoint)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s at %s", ErrTimeout, providerName, endpoint)
	}
	return &ErrUnavailable{Provider: providerName, Endpoint: endpoint, Cause: err}
}
