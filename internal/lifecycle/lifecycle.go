package lifecycle

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	StateStarting = "starting"
	StateServing  = "serving"
	StateDraining = "draining"
	StateStopped  = "stopped"

	EventReady = "ready"
	EventDrain = "drain"
	EventStop  = "stop"
)

//go:embed lifecycle.yaml
var definition []byte

type Event struct {
	Name string   `yaml:"name"`
	Src  []string `yaml:"src"`
	Dst  string   `yaml:"dst"`
}

type FSMConfig struct {
	InitialState string            `yaml:"initial_state"`
	Events       []Event           `yaml:"events"`
	Callbacks    map[string]string `yaml:"callbacks"`
}

// Lifecycle tracks whether the process is ready to take traffic.
type Lifecycle struct {
	machine *fsm.FSM
	logger  *zap.Logger

	mu        sync.Mutex
	listeners []func(state string)
}

// New builds the server lifecycle from the embedded definition.
func New(logger *zap.Logger) (*Lifecycle, error) {
	return Load(definition, logger)
}

func Load(data []byte, logger *zap.Logger) (*Lifecycle, error) {
	var cfg FSMConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse lifecycle definition: %w", err)
	}
	if cfg.InitialState == "" || len(cfg.Events) == 0 {
		return nil, fmt.Errorf("lifecycle definition needs an initial state and events")
	}

	l := &Lifecycle{logger: logger}

	events := make(fsm.Events, 0, len(cfg.Events))
	for _, e := range cfg.Events {
		events = append(events, fsm.EventDesc{Name: e.Name, Src: e.Src, Dst: e.Dst})
	}

	callbacks := fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			l.notify(e.Dst)
		},
	}
	for name, msg := range cfg.Callbacks {
		text := msg
		callbacks[name] = func(_ context.Context, e *fsm.Event) {
			l.logger.Info(text,
				zap.String("event", e.Event),
				zap.String("from", e.Src),
				zap.String("to", e.Dst))
		}
	}

	l.machine = fsm.NewFSM(cfg.InitialState, events, callbacks)
	return l, nil
}

// OnChange registers fn to run after every state transition.
func (l *Lifecycle) OnChange(fn func(state string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func (l *Lifecycle) notify(state string) {
	l.mu.Lock()
	listeners := append([]func(string){}, l.listeners...)
	l.mu.Unlock()
	for _, fn := range listeners {
		fn(state)
	}
}

func (l *Lifecycle) Fire(ctx context.Context, event string) error {
	if err := l.machine.Event(ctx, event); err != nil {
		return fmt.Errorf("lifecycle %s from %s: %w", event, l.machine.Current(), err)
	}
	return nil
}

func (l *Lifecycle) MarkReady(ctx context.Context) error { return l.Fire(ctx, EventReady) }
func (l *Lifecycle) Drain(ctx context.Context) error     { return l.Fire(ctx, EventDrain) }
func (l *Lifecycle) Stop(ctx context.Context) error      { return l.Fire(ctx, EventStop) }

func (l *Lifecycle) State() string {
	return l.machine.Current()
}

// Ready reports whether the server should receive traffic.
func (l *Lifecycle) Ready() bool {
	return l.machine.Current() == StateServing
}
