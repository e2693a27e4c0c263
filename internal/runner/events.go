package runner

import (
	"time"

	"github.com/ferryqueue/ferrysim/internal/dispatcher"
	"github.com/ferryqueue/ferrysim/internal/sim"
)

// Commands published on the dispatcher.
const (
	CmdRunStart = "run:start"
	CmdTick     = "tick"
	CmdSimEvent = "sim:event"
	CmdRunEnd   = "run:end"
)

// TickPayload is published after every advancing step.
type TickPayload struct {
	Tick   uint64
	Prev   sim.State
	Next   sim.State
	Config sim.Config
}

// SimEventPayload carries control-surface changes (reset, reconfigure).
type SimEventPayload struct {
	Kind   string
	State  sim.State
	Config sim.Config
	Detail string
}

// RunEndPayload is dispatched once the run is over.
type RunEndPayload struct {
	State   sim.State
	Config  sim.Config
	EndedAt time.Time
}

// Publisher receives runner events. *dispatcher.Dispatcher satisfies it.
type Publisher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

type discard struct{}

func (discard) Dispatch(dispatcher.Event) (any, error) { return nil, nil }
