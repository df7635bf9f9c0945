package fleet

import (
	"context"

	"github.com/balaji-balu/vps-screener/pkg/model"
)

// TaskSource yields pending work for a node. Agents pull from it on every cycle.
type TaskSource interface {
	Pending(ctx context.Context, nodeID string) ([]model.Task, error)
}

// NoTasks is the only source today: it never has work and never looks at
// the registry.
type NoTasks struct{}

func (NoTasks) Pending(context.Context, string) ([]model.Task, error) {
	return []model.Task{}, nil
}
