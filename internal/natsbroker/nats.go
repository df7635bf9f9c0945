package natsbroker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type Broker struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// ReconnectDelay grows exponentially with jitter between 500ms and 30s.
func ReconnectDelay(attempts int) time.Duration {
	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	return b.ForAttempt(float64(attempts))
}

func New(url string, logger *zap.Logger, opts ...nats.Option) (*Broker, error) {
	base := []nats.Option{
		nats.Name("vps-screener"),
		nats.MaxReconnects(-1),
		nats.CustomReconnectDelay(ReconnectDelay),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return &Broker{conn: nc, logger: logger}, nil
}

func (b *Broker) Publish(subject string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.conn.Publish(subject, data)
}

func (b *Broker) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}
