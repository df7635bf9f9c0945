package fleet

import (
	"bytes"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/balaji-balu/vps-screener/pkg/model"
)

var optionalFloatFields = []string{"ram_bytes", "ram_percent", "disk_percent"}

// Validate checks an inbound request and normalizes it into an IngestPayload.
// Checks run in a fixed order and the first failure is returned:
// identifier, metrics presence, metric values, timestamp.
func Validate(req model.IngestRequest) (model.IngestPayload, error) {
	id, ok := parseIdentifier(req.NodeHostname)
	if !ok {
		return model.IngestPayload{}, ErrMissingIdentifier
	}

	metrics, ok := parseObject(req.MetricsData)
	if !ok {
		return model.IngestPayload{}, ErrMissingMetrics
	}
	raw := make(map[string]string)
	metrics.ForEach(func(key, value gjson.Result) bool {
		raw[key.String()] = value.Raw
		return true
	})

	bundle := make(model.MetricsBundle, len(raw))
	for _, subject := range slices.Sorted(maps.Keys(raw)) {
		m, err := parseMetric([]byte(raw[subject]))
		if err != nil {
			return model.IngestPayload{}, fmt.Errorf("%w: subject %q: %s", ErrInvalidMetricValue, subject, err)
		}
		bundle[subject] = m
	}

	at, err := parseTimestamp(req.Timestamp)
	if err != nil {
		return model.IngestPayload{}, fmt.Errorf("%w: %s", ErrInvalidTimestamp, err)
	}

	return model.IngestPayload{
		NodeHostname: id,
		Metrics:      bundle,
		AgentTime:    at,
	}, nil
}

// parseIdentifier accepts any JSON string that is not blank. The value is
// kept exactly as sent.
func parseIdentifier(raw []byte) (string, bool) {
	if !gjson.ValidBytes(raw) {
		return "", false
	}
	r := gjson.ParseBytes(raw)
	if r.Type != gjson.String || strings.TrimSpace(r.Str) == "" {
		return "", false
	}
	return r.Str, true
}

func parseObject(raw []byte) (gjson.Result, bool) {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, false
	}
	r := gjson.ParseBytes(raw)
	return r, r.IsObject()
}

func parseMetric(raw []byte) (model.Metric, error) {
	var m model.Metric
	if !gjson.ValidBytes(raw) {
		return m, fmt.Errorf("not valid JSON")
	}
	obj := gjson.ParseBytes(raw)
	if !obj.IsObject() {
		return m, fmt.Errorf("expected an object, got %s", obj.Type)
	}

	cpu := obj.Get("cpu_percent")
	if !cpu.Exists() {
		return m, fmt.Errorf("cpu_percent is missing")
	}
	v, err := finite("cpu_percent", cpu)
	if err != nil {
		return m, err
	}
	m.CPUPercent = v

	for _, field := range optionalFloatFields {
		r := obj.Get(field)
		if !r.Exists() {
			continue
		}
		v, err := finite(field, r)
		if err != nil {
			return m, err
		}
		switch field {
		case "ram_bytes":
			m.RAMBytes = &v
		case "ram_percent":
			m.RAMPercent = &v
		case "disk_percent":
			m.DiskPercent = &v
		}
	}

	if r := obj.Get("process_count"); r.Exists() {
		v, err := finite("process_count", r)
		if err != nil {
			return m, err
		}
		if v < 0 || v != math.Trunc(v) || v >= math.MaxInt64 {
			return m, fmt.Errorf("process_count must be a non-negative integer, got %v", v)
		}
		n := int64(v)
		m.ProcessCount = &n
	}

	if r := obj.Get("custom"); r.Exists() {
		if !r.IsObject() {
			return m, fmt.Errorf("custom must be an object, got %s", r.Type)
		}
		custom, ok := r.Value().(map[string]any)
		if !ok {
			return m, fmt.Errorf("custom must be an object")
		}
		m.Custom = custom
	}

	return m, nil
}

func finite(field string, r gjson.Result) (float64, error) {
	if r.Type != gjson.Number {
		return 0, fmt.Errorf("%s must be a number, got %s", field, r.Type)
	}
	v := r.Float()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be finite", field)
	}
	return v, nil
}

func parseTimestamp(raw []byte) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return time.Time{}, fmt.Errorf("timestamp is missing")
	}
	if !gjson.ValidBytes(raw) {
		return time.Time{}, fmt.Errorf("timestamp is not valid JSON")
	}
	r := gjson.ParseBytes(raw)
	if r.Type == gjson.Null {
		return time.Time{}, fmt.Errorf("timestamp is missing")
	}
	secs, err := finite("timestamp", r)
	if err != nil {
		return time.Time{}, err
	}
	if secs < 0 {
		return time.Time{}, fmt.Errorf("timestamp must not be negative, got %v", secs)
	}
	if secs > maxUnixSeconds {
		return time.Time{}, fmt.Errorf("timestamp %v is out of range", secs)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC(), nil
}

// maxUnixSeconds keeps agent instants inside the range time.Time can represent
// and encode as RFC 3339 (year 9999).
const maxUnixSeconds = 253402300799
