package natsbroker

import (
	"strings"

	"go.uber.org/zap"

	"github.com/balaji-balu/vps-screener/pkg/model"
)

// StatusPublisher publishes every accepted status record on
// <prefix>.<node token> for consumers outside the process.
type StatusPublisher struct {
	broker *Broker
	prefix string
}

func (b *Broker) StatusPublisher(prefix string) *StatusPublisher {
	return &StatusPublisher{broker: b, prefix: strings.TrimSuffix(prefix, ".")}
}

// Broadcast returns 1 when the record could not be handed to the connection.
func (p *StatusPublisher) Broadcast(rec model.StatusRecord) int {
	subject := StatusSubject(p.prefix, rec.NodeID)
	if err := p.broker.Publish(subject, rec); err != nil {
		p.broker.logger.Warn("publish status", zap.String("subject", subject), zap.Error(err))
		return 1
	}
	return 0
}

var subjectToken = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_", "\r", "_", "\n", "_")

// StatusSubject maps a node id onto a single subject token. The record
// itself carries the exact id.
func StatusSubject(prefix, nodeID string) string {
	return prefix + "." + subjectToken.Replace(nodeID)
}
