package edgenode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/balaji-balu/vps-screener/internal/api"
	"github.com/balaji-balu/vps-screener/internal/fleet"
	"github.com/balaji-balu/vps-screener/internal/lifecycle"
	"github.com/balaji-balu/vps-screener/pkg/model"
)

func newScreener(t *testing.T) (*httptest.Server, *fleet.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := fleet.NewService(zap.NewNop(), fleet.NewRegistry(), fleet.NewProjector(0), nil, nil)
	life, err := lifecycle.New(zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(api.NewRouter(svc, life, zap.NewNop(), nil, api.Options{}))
	t.Cleanup(srv.Close)
	return srv, svc
}

func TestReportMetrics(t *testing.T) {
	srv, svc := newScreener(t)
	ctx := context.Background()
	ram := 40.0

	en := NewEdgeNode(srv.URL+"/", "secret", srv.Client())
	msg, err := en.ReportMetrics(ctx, "alpha", model.MetricsBundle{
		model.SystemSubject: {CPUPercent: 12.5, RAMPercent: &ram},
		"shop":              {CPUPercent: 3},
	}, time.UnixMilli(1700000000250))
	if err != nil {
		t.Fatalf("ReportMetrics() error = %v", err)
	}
	if msg != "Metrics received successfully" {
		t.Errorf("message = %q", msg)
	}

	records := svc.QueryStatus(ctx)
	if len(records) != 1 || records[0].NodeID != "alpha" {
		t.Fatalf("records = %+v", records)
	}
	if got := records[0].LastAgentTime.UnixMilli(); got != 1700000000250 {
		t.Errorf("agent time = %d ms, want 1700000000250", got)
	}
	if got := records[0].Metrics.Projects(); len(got) != 1 || got[0] != "shop" {
		t.Errorf("projects = %v, want [shop]", got)
	}
}

func TestReportRejected(t *testing.T) {
	srv, _ := newScreener(t)
	_, err := NewEdgeNode(srv.URL, "", srv.Client()).Send(context.Background(), Report{
		MetricsData: model.MetricsBundle{},
		Timestamp:   1,
	})
	if err == nil || !strings.Contains(err.Error(), "MissingIdentifier") {
		t.Errorf("Send() error = %v, want MissingIdentifier", err)
	}
}

func TestSendsBearerToken(t *testing.T) {
	var auth string
	var got Report
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	if _, err := NewEdgeNode(srv.URL, "agent-token", nil).Send(context.Background(), Report{NodeHostname: "alpha", Timestamp: 2}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if auth != "Bearer agent-token" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.NodeHostname != "alpha" || got.Timestamp != 2 {
		t.Errorf("server received %+v", got)
	}
}

func TestNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewEdgeNode(srv.URL, "", srv.Client()).Send(context.Background(), Report{})
	if err == nil || !strings.Contains(err.Error(), "bad gateway") {
		t.Errorf("Send() error = %v", err)
	}
}
