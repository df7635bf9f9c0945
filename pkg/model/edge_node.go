package model

import (
	"time"
)

// StatusRecord is the read model handed to dashboards.
type StatusRecord struct {
	NodeID          string        `json:"node_identifier" yaml:"node_identifier"`
	Metrics         MetricsBundle `json:"metrics_bundle" yaml:"metrics_bundle"`
	LastReceiptTime time.Time     `json:"last_receipt_time" yaml:"last_receipt_time"`
	LastAgentTime   time.Time     `json:"last_agent_reported_time" yaml:"last_agent_reported_time"`
	Stale           bool          `json:"stale" yaml:"stale"`
}
