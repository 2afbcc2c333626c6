// Package statemachine runs the offline controller lifecycle on statekit.
package statemachine

import (
	"fmt"
	"sync"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
	"github.com/felixgeelhaar/statekit"
	"github.com/sirupsen/logrus"
)

// Transition is one recorded lifecycle step.
type Transition struct {
	Event offline.WorkerEvent `json:"event"`
	To    offline.WorkerState `json:"to"`
	At    time.Time           `json:"at"`
}

// Context is carried through the machine.
type Context struct {
	History []Transition
	logger  *logrus.Logger
}

const (
	stateParsed     = statekit.StateID(offline.StateParsed)
	stateInstalling = statekit.StateID(offline.StateInstalling)
	stateInstalled  = statekit.StateID(offline.StateInstalled)
	stateActivating = statekit.StateID(offline.StateActivating)
	stateActivated  = statekit.StateID(offline.StateActivated)
	stateRedundant  = statekit.StateID(offline.StateRedundant)
)

// Event names match offline.WorkerEvent values.
const (
	evInstall   = "INSTALL"
	evInstalled = "INSTALLED"
	evActivate  = "ACTIVATE"
	evActivated = "ACTIVATED"
	evFail      = "FAIL"
)

// NewLifecycleMachine builds the install/activate statechart.
func NewLifecycleMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("offline-controller").
		WithInitial(stateParsed).
		WithContext(&Context{}).
		WithAction("logEntry", logEntry).
		State(stateParsed).
		On(evInstall).Target(stateInstalling).
		On(evFail).Target(stateRedundant).
		Done().
		State(stateInstalling).
		OnEntry("logEntry").
		On(evInstalled).Target(stateInstalled).
		On(evFail).Target(stateRedundant).
		Done().
		State(stateInstalled).
		OnEntry("logEntry").
		On(evActivate).Target(stateActivating).
		On(evFail).Target(stateRedundant).
		Done().
		State(stateActivating).
		OnEntry("logEntry").
		On(evActivated).Target(stateActivated).
		On(evFail).Target(stateRedundant).
		Done().
		State(stateActivated).
		OnEntry("logEntry").
		On(evInstall).Target(stateInstalling).
		Done().
		State(stateRedundant).
		OnEntry("logEntry").
		On(evInstall).Target(stateInstalling).
		Done().
		Build()
}

func logEntry(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil || (*ctx).logger == nil {
		return
	}
	(*ctx).logger.WithField("event", string(event.Type)).Debug("offline controller lifecycle: state entered")
}

// Lifecycle implements ports.WorkerLifecycle. statekit panics on events the
// current state does not accept, so every event is checked against
// offline.Next before it is sent.
type Lifecycle struct {
	mu     sync.Mutex
	interp *statekit.Interpreter[*Context]
	ctx    *Context
	logger *logrus.Logger
}

func NewLifecycle(logger *logrus.Logger) (*Lifecycle, error) {
	machine, err := NewLifecycleMachine()
	if err != nil {
		return nil, fmt.Errorf("build lifecycle machine: %w", err)
	}
	c := &Context{logger: logger}
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(cur **Context) {
		*cur = c
	})
	interp.Start()
	return &Lifecycle{interp: interp, ctx: c, logger: logger}, nil
}

func (l *Lifecycle) State() offline.WorkerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return offline.WorkerState(l.interp.State().Value)
}

// Fire sends event and returns the new state, or an error when the current
// state does not accept it.
func (l *Lifecycle) Fire(event offline.WorkerEvent) (offline.WorkerState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	from := offline.WorkerState(l.interp.State().Value)
	want, ok := offline.Next(from, event)
	if !ok {
		return from, fmt.Errorf("lifecycle: event %s not allowed in state %s", event, from)
	}
	l.interp.Send(statekit.Event{Type: statekit.EventType(event)})
	to := offline.WorkerState(l.interp.State().Value)
	if to != want {
		return to, fmt.Errorf("lifecycle: event %s moved %s to %s, expected %s", event, from, to, want)
	}
	l.ctx.History = append(l.ctx.History, Transition{Event: event, To: to, At: time.Now().UTC()})
	if l.logger != nil {
		l.logger.WithFields(logrus.Fields{"from": from, "to": to, "event": event}).Info("offline controller lifecycle transition")
	}
	return to, nil
}

// History returns the transitions fired so far.
func (l *Lifecycle) History() []Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transition, len(l.ctx.History))
	copy(out, l.ctx.History)
	return out
}

func (l *Lifecycle) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.interp.Stop()
}
