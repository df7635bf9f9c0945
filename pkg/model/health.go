package model

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// SystemSubject is the reserved bundle key for node-level metrics.
// Every other key names a project running on the node.
const SystemSubject = "_system"

// Metric is one subject's resource readings for a single report cycle.
// Nil optional fields were not reported; they are never zero-filled.
type Metric struct {
	CPUPercent   float64        `json:"cpu_percent" yaml:"cpu_percent"`
	RAMBytes     *float64       `json:"ram_bytes,omitempty" yaml:"ram_bytes,omitempty"`
	RAMPercent   *float64       `json:"ram_percent,omitempty" yaml:"ram_percent,omitempty"`
	DiskPercent  *float64       `json:"disk_percent,omitempty" yaml:"disk_percent,omitempty"`
	ProcessCount *int64         `json:"process_count,omitempty" yaml:"process_count,omitempty"`
	Custom       map[string]any `json:"custom,omitempty" yaml:"custom,omitempty"`
}

type MetricsBundle map[string]Metric

// IngestRequest is the wire shape pushed by agents. Every field stays raw
// until validated so a badly typed field is reported as that field's problem.
type IngestRequest struct {
	NodeHostname json.RawMessage `json:"node_hostname"`
	MetricsData  json.RawMessage `json:"metrics_data"`
	Timestamp    json.RawMessage `json:"timestamp"`
}

// Hostname returns node_hostname when it is a JSON string, or "".
func (r IngestRequest) Hostname() string {
	var s string
	if err := json.Unmarshal(r.NodeHostname, &s); err != nil {
		return ""
	}
	return s
}

// IngestPayload is a validated, normalized IngestRequest.
type IngestPayload struct {
	NodeHostname string
	Metrics      MetricsBundle
	AgentTime    time.Time
}

func (m Metric) Clone() Metric {
	out := m
	out.RAMBytes = clonePtr(m.RAMBytes)
	out.RAMPercent = clonePtr(m.RAMPercent)
	out.DiskPercent = clonePtr(m.DiskPercent)
	out.ProcessCount = clonePtr(m.ProcessCount)
	if m.Custom != nil {
		out.Custom = cloneValue(m.Custom).(map[string]any)
	}
	return out
}

// Clone returns a deep copy of the bundle. A nil bundle stays nil.
func (b MetricsBundle) Clone() MetricsBundle {
	if b == nil {
		return nil
	}
	out := make(MetricsBundle, len(b))
	for subject, m := range b {
		out[subject] = m.Clone()
	}
	return out
}

// System returns the node-level metric if the agent reported one.
func (b MetricsBundle) System() (Metric, bool) {
	m, ok := b[SystemSubject]
	return m, ok
}

// Projects lists the project subjects in lexical order.
func (b MetricsBundle) Projects() []string {
	names := slices.Sorted(maps.Keys(b))
	return slices.DeleteFunc(names, func(s string) bool { return s == SystemSubject })
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
