package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Client is a remote embedding model.
type Client interface {
	Name() string
	EmbedContent(ctx context.Context, text string) ([]float64, error)
}

// ErrMalformedResponse is returned when a provider answers without a usable vector.
var ErrMalformedResponse = errors.New("embedding: malformed response")

// StatusError carries a non-2xx response from an embedding provider.
type StatusError struct {
	Provider string
	Code     int
	Status   string
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s embeddings failed: %s: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s embeddings failed: %s", e.Provider, e.Status)
}

// ErrorClass groups primary-path failures for logging.
type ErrorClass string

const (
	ClassQuota     ErrorClass = "quota"
	ClassTransient ErrorClass = "transient"
	ClassPermanent ErrorClass = "permanent"
)

var quotaMarkers = []string{"quota", "429", "resource_exhausted", "rate limit", "too many requests"}

// Classify inspects err and reports which kind of primary failure it is.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == 429:
			return ClassQuota
		case se.Code >= 500:
			return ClassTransient
		}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range quotaMarkers {
		if strings.Contains(msg, m) {
			return ClassQuota
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTransient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ClassTransient
	}
	return ClassPermanent
}
