package fleet

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/balaji-balu/vps-screener/internal/metrics"
	"github.com/balaji-balu/vps-screener/pkg/model"
)

// Service is the inbound contract used by every ingress adapter.
type Service struct {
	logger    *zap.Logger
	registry  *Registry
	projector *Projector
	tasks     TaskSource
	metrics   *metrics.Metrics
	publishers []Publisher
	tracer    trace.Tracer
	now       func() time.Time
}

// Publisher receives the fresh status record of every accepted report and
// returns how many deliveries it could not make.
type Publisher interface {
	Broadcast(rec model.StatusRecord) int
}

type ServiceOption func(*Service)

// WithPublisher adds p to the publishers notified after each accepted report.
// It may be given more than once.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.publishers = append(s.publishers, p)
		}
	}
}

func NewService(logger *zap.Logger, registry *Registry, projector *Projector, tasks TaskSource, m *metrics.Metrics, opts ...ServiceOption) *Service {
	if tasks == nil {
		tasks = NoTasks{}
	}
	s := &Service{
		logger:    logger,
		registry:  registry,
		projector: projector,
		tasks:     tasks,
		metrics:   m,
		tracer:    otel.Tracer("github.com/balaji-balu/vps-screener/internal/fleet"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates one agent push and, when it is valid, replaces the node's state.
// Rejections wrap one of the Err* kinds and leave the registry untouched.
func (s *Service) Submit(ctx context.Context, req model.IngestRequest) error {
	_, span := s.tracer.Start(ctx, "fleet.Submit")
	defer span.End()

	payload, err := Validate(req)
	if err != nil {
		reason := Reason(err)
		s.metrics.IngestRejected(reason)
		span.SetAttributes(attribute.String("fleet.reject_reason", reason))
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("rejected metrics payload",
			zap.String("node", req.Hostname()),
			zap.String("reason", reason),
			zap.Error(err))
		return err
	}

	span.SetAttributes(
		attribute.String("fleet.node", payload.NodeHostname),
		attribute.Int("fleet.subjects", len(payload.Metrics)),
	)

	created := s.registry.Upsert(payload.NodeHostname, payload.Metrics, payload.AgentTime)
	s.metrics.IngestAccepted()
	if created {
		s.metrics.SetNodesKnown(s.registry.Len())
		s.logger.Info("node registered", zap.String("node", payload.NodeHostname))
	}
	s.logger.Debug("metrics updated",
		zap.String("node", payload.NodeHostname),
		zap.Int("subjects", len(payload.Metrics)),
		zap.Time("agent_time", payload.AgentTime))

	s.publish(payload.NodeHostname)
	return nil
}

func (s *Service) publish(id string) {
	if len(s.publishers) == 0 {
		return
	}
	st, ok := s.registry.Get(id)
	if !ok {
		return
	}
	rec := s.projector.Record(st, s.now())
	dropped := 0
	for _, p := range s.publishers {
		dropped += p.Broadcast(rec)
	}
	if dropped > 0 {
		s.logger.Debug("status updates dropped", zap.String("node", id), zap.Int("dropped", dropped))
	}
}

// QueryStatus returns one record per known node, ordered by node id.
func (s *Service) QueryStatus(ctx context.Context) []model.StatusRecord {
	_, span := s.tracer.Start(ctx, "fleet.QueryStatus")
	defer span.End()

	records := s.projector.Project(s.registry.Snapshot(), s.now())
	s.metrics.StatusQueried()
	span.SetAttributes(attribute.Int("fleet.nodes", len(records)))
	return records
}

// FetchTasks returns pending work for nodeID. The registry is not consulted.
func (s *Service) FetchTasks(ctx context.Context, nodeID string) ([]model.Task, error) {
	tasks, err := s.tasks.Pending(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("tasks requested", zap.String("node", nodeID), zap.Int("count", len(tasks)))
	return tasks, nil
}

// Summary counts known and stale nodes at the moment of the call.
type Summary struct {
	Known int
	Stale int
}

func (s *Service) Summarize() Summary {
	records := s.projector.Project(s.registry.Snapshot(), s.now())
	sum := Summary{Known: len(records)}
	for _, r := range records {
		if r.Stale {
			sum.Stale++
		}
	}
	s.metrics.SetNodes(sum.Known, sum.Stale)
	return sum
}
