package fleet

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/balaji-balu/vps-screener/pkg/model"
)

func request(t *testing.T, body string) model.IngestRequest {
	t.Helper()
	var req model.IngestRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode request %s: %v", body, err)
	}
	return req
}

func ptr[T any](v T) *T { return &v }

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"empty hostname", `{"node_hostname":"","metrics_data":{"_system":{"cpu_percent":1}},"timestamp":1700000000}`, ErrMissingIdentifier},
		{"blank hostname", `{"node_hostname":"   ","metrics_data":{"_system":{"cpu_percent":1}},"timestamp":1700000000}`, ErrMissingIdentifier},
		{"no hostname", `{"metrics_data":{"_system":{"cpu_percent":1}},"timestamp":1700000000}`, ErrMissingIdentifier},
		{"numeric hostname", `{"node_hostname":42,"metrics_data":{"_system":{"cpu_percent":1}},"timestamp":1700000000}`, ErrMissingIdentifier},
		{"null hostname", `{"node_hostname":null,"metrics_data":{"_system":{"cpu_percent":1}},"timestamp":1700000000}`, ErrMissingIdentifier},
		{"no metrics", `{"node_hostname":"alpha","timestamp":1700000000}`, ErrMissingMetrics},
		{"null metrics", `{"node_hostname":"alpha","metrics_data":null,"timestamp":1700000000}`, ErrMissingMetrics},
		{"metrics string", `{"node_hostname":"alpha","metrics_data":"x","timestamp":1700000000}`, ErrMissingMetrics},
		{"metrics array", `{"node_hostname":"alpha","metrics_data":[{"cpu_percent":1}],"timestamp":1700000000}`, ErrMissingMetrics},
		{"cpu not numeric", `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":"high"}},"timestamp":1700000000}`, ErrInvalidMetricValue},
		{"cpu missing", `{"node_hostname":"alpha","metrics_data":{"web":{"ram_bytes":10}},"timestamp":1700000000}`, ErrInvalidMetricValue},
		{"cpu overflows", `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":1e400}},"timestamp":1700000000}`, ErrInvalidMetricValue},
		{"subject null", `{"node_hostname":"alpha","metrics_data":{"_system":null},"timestamp":1700000000}`, ErrInvalidMetricValue},
		{"subject not object", `{"node_hostname":"alpha","metrics_data":{"_system":42},"timestamp":1700000000}`, ErrInvalidMetricValue},
		{"ram percent string", `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":1,"ram_percent":"50%"}},"timestamp":1700000000}`, ErrInvalidMetricValue},
		{"disk percent bool", `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":1,"disk_percent":true}},"timestamp":1700000000}`, ErrInvalidMetricValue},
		{"fractional process count", `{"node_hostname":"alpha","metrics_data":{"web":{"cpu_percent":1,"process_count":2.5}},"timestamp":1700000000}`, ErrInvalidMetricValue},
		{"negative process count", `{"node_hostname":"alpha","metrics_data":{"web":{"cpu_percent":1,"process_count":-1}},"timestamp":1700000000}`, ErrInvalidMetricValue},
		{"custom not object", `{"node_hostname":"alpha","metrics_data":{"web":{"cpu_percent":1,"custom":"ok"}},"timestamp":1700000000}`, ErrInvalidMetricValue},
		{"no timestamp", `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":1}}}`, ErrInvalidTimestamp},
		{"null timestamp", `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":1}},"timestamp":null}`, ErrInvalidTimestamp},
		{"negative timestamp", `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":1}},"timestamp":-5}`, ErrInvalidTimestamp},
		{"string timestamp", `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":1}},"timestamp":"1700000000"}`, ErrInvalidTimestamp},
		{"timestamp out of range", `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":1}},"timestamp":1e300}`, ErrInvalidTimestamp},
		// first failure wins
		{"identifier before timestamp", `{"node_hostname":"","metrics_data":{"_system":{"cpu_percent":1}},"timestamp":-1}`, ErrMissingIdentifier},
		{"metrics before timestamp", `{"node_hostname":"alpha","timestamp":-1}`, ErrMissingMetrics},
		{"badly typed identifier before metrics", `{"node_hostname":"","metrics_data":"x","timestamp":1700000000}`, ErrMissingIdentifier},
		{"value before timestamp", `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":"x"}},"timestamp":-1}`, ErrInvalidMetricValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(request(t, tt.body))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.want)
			}
			for _, r := range reasons {
				if r.err != tt.want && errors.Is(err, r.err) {
					t.Errorf("error %v also matches %v", err, r.err)
				}
			}
		})
	}
}

func TestValidateNormalizes(t *testing.T) {
	body := `{
		"node_hostname": " alpha ",
		"metrics_data": {
			"_system": {"cpu_percent": 12.5, "ram_percent": 40, "disk_percent": 71.2},
			"shop": {"cpu_percent": 130, "ram_bytes": 2048, "process_count": 3, "custom": {"plugin_version": "1.0.1", "queue": [1, 2]}, "unknown": "dropped"}
		},
		"timestamp": 1700000000.5
	}`

	got, err := Validate(request(t, body))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	want := model.IngestPayload{
		NodeHostname: " alpha ",
		Metrics: model.MetricsBundle{
			model.SystemSubject: {CPUPercent: 12.5, RAMPercent: ptr(40.0), DiskPercent: ptr(71.2)},
			"shop": {
				CPUPercent:   130,
				RAMBytes:     ptr(2048.0),
				ProcessCount: ptr(int64(3)),
				Custom:       map[string]any{"plugin_version": "1.0.1", "queue": []any{1.0, 2.0}},
			},
		},
		AgentTime: time.Unix(1700000000, 500_000_000).UTC(),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateKeepsIdentifierAsSent(t *testing.T) {
	for _, id := range []string{" alpha ", "ALPHA", "alpha.example.com", "节点-1"} {
		body, err := json.Marshal(map[string]any{
			"node_hostname": id,
			"metrics_data":  map[string]any{},
			"timestamp":     1,
		})
		if err != nil {
			t.Fatal(err)
		}
		got, err := Validate(request(t, string(body)))
		if err != nil {
			t.Fatalf("Validate(%q) error = %v", id, err)
		}
		if got.NodeHostname != id {
			t.Errorf("NodeHostname = %q, want %q", got.NodeHostname, id)
		}
	}
}

func TestValidateEmptyBundle(t *testing.T) {
	got, err := Validate(request(t, `{"node_hostname":"alpha","metrics_data":{},"timestamp":0}`))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.Metrics == nil || len(got.Metrics) != 0 {
		t.Errorf("Metrics = %#v, want empty non-nil bundle", got.Metrics)
	}
	if !got.AgentTime.Equal(time.Unix(0, 0)) {
		t.Errorf("AgentTime = %v, want unix epoch", got.AgentTime)
	}
}

func TestReason(t *testing.T) {
	_, err := Validate(request(t, `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":"high"}},"timestamp":1}`))
	if got := Reason(err); got != "InvalidMetricValue" {
		t.Errorf("Reason() = %q, want InvalidMetricValue", got)
	}
	if !IsRejection(err) {
		t.Error("IsRejection() = false, want true")
	}
	if got := Reason(errors.New("boom")); got != "" {
		t.Errorf("Reason(foreign) = %q, want empty", got)
	}
	if got := Reason(nil); got != "" {
		t.Errorf("Reason(nil) = %q, want empty", got)
	}
}
