package fleet

import (
	"errors"
)

// Rejection kinds. Each is a client-input error; none is fatal.
var (
	ErrMissingIdentifier  = errors.New("node identifier is missing")
	ErrMissingMetrics     = errors.New("metrics data is missing")
	ErrInvalidMetricValue = errors.New("invalid metric value")
	ErrInvalidTimestamp   = errors.New("invalid timestamp")
)

var reasons = []struct {
	err  error
	name string
}{
	{ErrMissingIdentifier, "MissingIdentifier"},
	{ErrMissingMetrics, "MissingMetrics"},
	{ErrInvalidMetricValue, "InvalidMetricValue"},
	{ErrInvalidTimestamp, "InvalidTimestamp"},
}

// Reason names the rejection kind carried by err, or "" when err is not a rejection.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.name
		}
	}
	return ""
}

// IsRejection reports whether err came from payload validation.
func IsRejection(err error) bool {
	return Reason(err) != ""
}
