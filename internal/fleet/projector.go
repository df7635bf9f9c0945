package fleet

import (
	"time"

	"github.com/balaji-balu/vps-screener/pkg/model"
)

// Projector turns registry states into status records.
// With a zero staleAfter nothing is ever flagged stale.
type Projector struct {
	staleAfter time.Duration
}

func NewProjector(staleAfter time.Duration) *Projector {
	return &Projector{staleAfter: staleAfter}
}

func (p *Projector) StaleAfter() time.Duration {
	return p.staleAfter
}

// Project maps states one to one, keeping their order.
func (p *Projector) Project(states []NodeState, now time.Time) []model.StatusRecord {
	records := make([]model.StatusRecord, 0, len(states))
	for _, st := range states {
		records = append(records, p.Record(st, now))
	}
	return records
}

func (p *Projector) Record(st NodeState, now time.Time) model.StatusRecord {
	return model.StatusRecord{
		NodeID:          st.NodeID,
		Metrics:         st.Metrics,
		LastReceiptTime: st.ReceiptTime,
		LastAgentTime:   st.AgentTime,
		Stale:           p.staleAfter > 0 && now.Sub(st.ReceiptTime) > p.staleAfter,
	}
}
