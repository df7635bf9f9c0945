package fleet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/balaji-balu/vps-screener/internal/metrics"
	"github.com/balaji-balu/vps-screener/pkg/model"
)

func newTestService(t *testing.T, staleAfter time.Duration, clock func() time.Time) (*Service, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry(), "test")
	registry := NewRegistry(WithClock(clock))
	svc := NewService(zap.NewNop(), registry, NewProjector(staleAfter), nil, m)
	svc.now = clock
	return svc, m
}

// Agent alpha reports once and the status query returns exactly that report.
func TestScenarioSingleReport(t *testing.T) {
	ctx := context.Background()
	svc, m := newTestService(t, 0, stepClock(t0))

	err := svc.Submit(ctx, request(t, `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":12.5}},"timestamp":1700000000}`))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	want := []model.StatusRecord{{
		NodeID:          "alpha",
		Metrics:         bundle(12.5),
		LastReceiptTime: t0,
		LastAgentTime:   time.Unix(1700000000, 0).UTC(),
	}}
	if diff := cmp.Diff(want, svc.QueryStatus(ctx)); diff != "" {
		t.Errorf("QueryStatus() mismatch (-want +got):\n%s", diff)
	}
	if got := testutil.ToFloat64(m.IngestTotal.WithLabelValues("accepted", "")); got != 1 {
		t.Errorf("accepted counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.NodesKnown); got != 1 {
		t.Errorf("nodes_known = %v, want 1", got)
	}
}

// A later report for the same node replaces its bundle and timestamps.
func TestScenarioSecondReportReplaces(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 0, stepClock(t0, t0.Add(10*time.Second)))

	mustSubmit(t, svc, `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":12.5}},"timestamp":1700000000}`)
	mustSubmit(t, svc, `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":80},"shop":{"cpu_percent":5,"ram_bytes":1024}},"timestamp":1700000010}`)

	got := svc.QueryStatus(ctx)
	if len(got) != 1 {
		t.Fatalf("QueryStatus() returned %d records, want 1", len(got))
	}
	want := model.StatusRecord{
		NodeID: "alpha",
		Metrics: model.MetricsBundle{
			model.SystemSubject: {CPUPercent: 80},
			"shop":              {CPUPercent: 5, RAMBytes: ptr(1024.0)},
		},
		LastReceiptTime: t0.Add(10 * time.Second),
		LastAgentTime:   time.Unix(1700000010, 0).UTC(),
	}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

// An invalid report is rejected and the previous state is kept.
func TestScenarioRejectionKeepsState(t *testing.T) {
	ctx := context.Background()
	svc, m := newTestService(t, 0, stepClock(t0, t0.Add(time.Second)))

	mustSubmit(t, svc, `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":12.5}},"timestamp":1700000000}`)
	before := svc.QueryStatus(ctx)

	bad := []struct {
		body string
		want error
	}{
		{`{"node_hostname":"","metrics_data":{"_system":{"cpu_percent":1}},"timestamp":1700000001}`, ErrMissingIdentifier},
		{`{"node_hostname":"alpha","timestamp":1700000001}`, ErrMissingMetrics},
		{`{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":"high"}},"timestamp":1700000001}`, ErrInvalidMetricValue},
		{`{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":1}},"timestamp":-1}`, ErrInvalidTimestamp},
	}
	for _, b := range bad {
		if err := svc.Submit(ctx, request(t, b.body)); !errors.Is(err, b.want) {
			t.Errorf("Submit(%s) error = %v, want %v", b.body, err, b.want)
		}
	}

	if diff := cmp.Diff(before, svc.QueryStatus(ctx)); diff != "" {
		t.Errorf("status changed after rejected reports (-before +after):\n%s", diff)
	}
	if got := testutil.ToFloat64(m.IngestTotal.WithLabelValues("rejected", "InvalidMetricValue")); got != 1 {
		t.Errorf("rejected InvalidMetricValue counter = %v, want 1", got)
	}
}

// Two nodes report independently and both appear, ordered by id.
func TestScenarioTwoNodes(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 0, stepClock(t0))

	mustSubmit(t, svc, `{"node_hostname":"beta","metrics_data":{"_system":{"cpu_percent":50}},"timestamp":1700000000}`)
	mustSubmit(t, svc, `{"node_hostname":"alpha","metrics_data":{},"timestamp":1700000000}`)

	got := svc.QueryStatus(ctx)
	if len(got) != 2 || got[0].NodeID != "alpha" || got[1].NodeID != "beta" {
		t.Fatalf("QueryStatus() = %+v, want alpha and beta", got)
	}
	if len(got[0].Metrics) != 0 {
		t.Errorf("alpha bundle = %v, want empty", got[0].Metrics)
	}
	if got[1].Metrics[model.SystemSubject].CPUPercent != 50 {
		t.Errorf("beta cpu = %v, want 50", got[1].Metrics[model.SystemSubject].CPUPercent)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 0, stepClock(t0, t0.Add(time.Second)))
	body := `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":12.5}},"timestamp":1700000000}`

	mustSubmit(t, svc, body)
	first := svc.QueryStatus(ctx)
	mustSubmit(t, svc, body)
	second := svc.QueryStatus(ctx)

	if diff := cmp.Diff(first[0].Metrics, second[0].Metrics); diff != "" {
		t.Errorf("bundle changed on replay (-first +second):\n%s", diff)
	}
	if !second[0].LastReceiptTime.After(first[0].LastReceiptTime) {
		t.Errorf("receipt time %v not refreshed past %v", second[0].LastReceiptTime, first[0].LastReceiptTime)
	}
}

func TestSummarizeCountsStaleNodes(t *testing.T) {
	now := t0
	clock := func() time.Time { return now }
	svc, m := newTestService(t, time.Minute, clock)

	mustSubmit(t, svc, `{"node_hostname":"alpha","metrics_data":{},"timestamp":1}`)
	now = t0.Add(2 * time.Minute)
	mustSubmit(t, svc, `{"node_hostname":"beta","metrics_data":{},"timestamp":1}`)

	sum := svc.Summarize()
	if diff := cmp.Diff(Summary{Known: 2, Stale: 1}, sum); diff != "" {
		t.Errorf("Summarize() mismatch (-want +got):\n%s", diff)
	}
	if got := testutil.ToFloat64(m.NodesStale); got != 1 {
		t.Errorf("nodes_stale = %v, want 1", got)
	}
	records := svc.QueryStatus(context.Background())
	if !records[0].Stale || records[1].Stale {
		t.Errorf("stale flags = %v/%v, want true/false", records[0].Stale, records[1].Stale)
	}
}

func TestFetchTasksIsEmpty(t *testing.T) {
	svc, _ := newTestService(t, 0, stepClock(t0))
	for _, node := range []string{"alpha", "", "never-reported"} {
		tasks, err := svc.FetchTasks(context.Background(), node)
		if err != nil {
			t.Fatalf("FetchTasks(%q) error = %v", node, err)
		}
		if tasks == nil || len(tasks) != 0 {
			t.Errorf("FetchTasks(%q) = %#v, want empty non-nil", node, tasks)
		}
	}
}

func TestServiceWithoutMetrics(t *testing.T) {
	svc := NewService(zap.NewNop(), NewRegistry(), NewProjector(0), NoTasks{}, nil)
	mustSubmit(t, svc, `{"node_hostname":"alpha","metrics_data":{},"timestamp":1}`)
	if err := svc.Submit(context.Background(), request(t, `{"node_hostname":""}`)); !errors.Is(err, ErrMissingIdentifier) {
		t.Errorf("Submit() error = %v, want %v", err, ErrMissingIdentifier)
	}
	if got := svc.Summarize(); got.Known != 1 {
		t.Errorf("Summarize().Known = %d, want 1", got.Known)
	}
}

func mustSubmit(t *testing.T, svc *Service, body string) {
	t.Helper()
	if err := svc.Submit(context.Background(), request(t, body)); err != nil {
		t.Fatalf("Submit(%s) error = %v", body, err)
	}
}

type recordingPublisher struct {
	records []model.StatusRecord
}

func (p *recordingPublisher) Broadcast(rec model.StatusRecord) int {
	p.records = append(p.records, rec)
	return 0
}

func TestSubmitPublishesAcceptedReports(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewService(zap.NewNop(), NewRegistry(WithClock(stepClock(t0))), NewProjector(0), nil, nil, WithPublisher(pub))

	mustSubmit(t, svc, `{"node_hostname":"alpha","metrics_data":{"_system":{"cpu_percent":5}},"timestamp":1}`)
	_ = svc.Submit(context.Background(), request(t, `{"node_hostname":"alpha","timestamp":1}`))

	if len(pub.records) != 1 {
		t.Fatalf("published %d records, want only the accepted one", len(pub.records))
	}
	want := model.StatusRecord{
		NodeID:          "alpha",
		Metrics:         bundle(5),
		LastReceiptTime: t0,
		LastAgentTime:   time.Unix(1, 0).UTC(),
	}
	if diff := cmp.Diff(want, pub.records[0]); diff != "" {
		t.Errorf("published record mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitPublishesToEveryPublisher(t *testing.T) {
	first, second := &recordingPublisher{}, &recordingPublisher{}
	svc := NewService(zap.NewNop(), NewRegistry(), NewProjector(0), nil, nil,
		WithPublisher(first), WithPublisher(nil), WithPublisher(second))

	mustSubmit(t, svc, `{"node_hostname":"alpha","metrics_data":{},"timestamp":1}`)
	mustSubmit(t, svc, `{"node_hostname":"beta","metrics_data":{},"timestamp":1}`)

	for i, pub := range []*recordingPublisher{first, second} {
		if len(pub.records) != 2 || pub.records[0].NodeID != "alpha" || pub.records[1].NodeID != "beta" {
			t.Errorf("publisher %d got %+v, want alpha then beta", i, pub.records)
		}
	}
}
