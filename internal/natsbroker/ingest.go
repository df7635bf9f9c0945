package natsbroker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/balaji-balu/vps-screener/internal/fleet"
	"github.com/balaji-balu/vps-screener/pkg/model"
)

const ReasonMalformedPayload = "MalformedPayload"

type Submitter interface {
	Submit(ctx context.Context, req model.IngestRequest) error
}

// Reply mirrors the HTTP response bodies of the metrics endpoint.
type Reply struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Process decodes one agent report and submits it.
func Process(ctx context.Context, svc Submitter, data []byte) Reply {
	var req model.IngestRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return Reply{Error: err.Error(), Reason: ReasonMalformedPayload}
	}
	if err := svc.Submit(ctx, req); err != nil {
		return Reply{Error: err.Error(), Reason: fleet.Reason(err)}
	}
	return Reply{Message: "Metrics received successfully"}
}

// ServeIngest consumes agent reports on subject until ctx is done. Messages
// are handled on at most workers goroutines; request/reply messages get a
// Reply back.
func (b *Broker) ServeIngest(ctx context.Context, svc Submitter, subject, queue string, workers int) error {
	msgs := make(chan *nats.Msg, workers*64)
	sub, err := b.conn.ChanQueueSubscribe(subject, queue, msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	b.logger.Info("nats ingest subscribed", zap.String("subject", subject), zap.String("queue", queue), zap.Int("workers", workers))

	p := pool.New().WithMaxGoroutines(workers)
	defer p.Wait()

	for {
		select {
		case <-ctx.Done():
			if err := sub.Unsubscribe(); err != nil {
				b.logger.Warn("nats unsubscribe", zap.Error(err))
			}
			return nil
		case msg := <-msgs:
			p.Go(func() {
				b.handle(ctx, svc, msg)
			})
		}
	}
}

func (b *Broker) handle(ctx context.Context, svc Submitter, msg *nats.Msg) {
	reply := Process(ctx, svc, msg.Data)
	if reply.Reason == ReasonMalformedPayload {
		b.logger.Warn("malformed nats report", zap.String("subject", msg.Subject), zap.String("error", reply.Error))
	}
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		b.logger.Error("encode nats reply", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		b.logger.Warn("nats respond", zap.String("subject", msg.Subject), zap.Error(err))
	}
}
