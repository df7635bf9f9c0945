package edgenode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/balaji-balu/vps-screener/pkg/model"
)

// Report is the agent wire format with typed metrics.
type Report struct {
	NodeHostname string              `json:"node_hostname"`
	MetricsData  model.MetricsBundle `json:"metrics_data"`
	Timestamp    float64             `json:"timestamp"`
}

// EdgeNode pushes metric reports to a screener the way the VPS agent does.
type EdgeNode struct {
	screenerURL string
	token       string
	client      *http.Client
}

func NewEdgeNode(screenerURL, token string, client *http.Client) *EdgeNode {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &EdgeNode{
		screenerURL: strings.TrimRight(screenerURL, "/"),
		token:       token,
		client:      client,
	}
}

// ReportMetrics sends one report stamped with at and returns the server message.
func (en *EdgeNode) ReportMetrics(ctx context.Context, node string, bundle model.MetricsBundle, at time.Time) (string, error) {
	return en.Send(ctx, Report{
		NodeHostname: node,
		MetricsData:  bundle,
		Timestamp:    float64(at.UnixMilli()) / 1000,
	})
}

func (en *EdgeNode) Send(ctx context.Context, r Report) (string, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, en.screenerURL+"/v1/metrics", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if en.token != "" {
		req.Header.Set("Authorization", "Bearer "+en.token)
	}

	resp, err := en.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("push report: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}
	var out struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("push report: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("push report rejected (%s): %s", out.Reason, out.Error)
	}
	return out.Message, nil
}
