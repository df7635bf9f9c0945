package streammanager

import (
	"sync"

	"github.com/balaji-balu/vps-screener/pkg/model"
)

// AllNodes subscribes to updates from every node.
const AllNodes = ""

const bufferSize = 16

// StreamManager fans status updates out to live subscribers. Slow
// subscribers miss updates rather than block the publisher.
type StreamManager struct {
	mu      sync.Mutex
	streams map[string][]chan model.StatusRecord
	closed  bool
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		streams: make(map[string][]chan model.StatusRecord),
	}
}

// Register subscribes to updates for nodeID, or for all nodes with AllNodes.
// The channel is closed by Unregister or Close.
func (s *StreamManager) Register(nodeID string) chan model.StatusRecord {
	ch := make(chan model.StatusRecord, bufferSize)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	s.streams[nodeID] = append(s.streams[nodeID], ch)
	return ch
}

func (s *StreamManager) Unregister(nodeID string, ch chan model.StatusRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	channels := s.streams[nodeID]
	for i, c := range channels {
		if c == ch {
			close(c)
			s.streams[nodeID] = append(channels[:i], channels[i+1:]...)
			break
		}
	}
	if len(s.streams[nodeID]) == 0 {
		delete(s.streams, nodeID)
	}
}

// Broadcast delivers rec to subscribers of its node and of AllNodes and
// returns how many subscribers were skipped because their buffer was full.
func (s *StreamManager) Broadcast(rec model.StatusRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	send := func(channels []chan model.StatusRecord) {
		for _, ch := range channels {
			select {
			case ch <- rec:
			default:
				dropped++
			}
		}
	}
	send(s.streams[rec.NodeID])
	if rec.NodeID != AllNodes {
		send(s.streams[AllNodes])
	}
	return dropped
}

// Len returns the number of live subscribers.
func (s *StreamManager) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, channels := range s.streams {
		n += len(channels)
	}
	return n
}

// Close ends every subscription. Later registrations get a closed channel.
func (s *StreamManager) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, channels := range s.streams {
		for _, ch := range channels {
			close(ch)
		}
		delete(s.streams, id)
	}
}
