package sim

import (
	"encoding/json"
	"math"

	"github.com/ferryqueue/ferrysim/internal/queue"
)

// FerryState names a ferry phase.
type FerryState string

const (
	StateIdle        FerryState = "idle"
	StateLoading     FerryState = "loading"
	StateCrossing    FerryState = "crossing"
	StateUnloading   FerryState = "unloading"
	StateMaintenance FerryState = "maintenance"
)

// Phase is the state of one ferry. Only the types in this package implement
// it, so a ferry is either docked at a terminal or crossing with a heading,
// never both.
type Phase interface {
	State() FerryState
	isPhase()
}

// Idle ferries wait at a terminal for vehicles.
type Idle struct{ At Terminal }

// Loading ferries board vehicles from the queue at their terminal.
type Loading struct{ At Terminal }

// Crossing ferries are in transit and dock at ArrivesAt.
type Crossing struct {
	Heading   Direction
	ArrivesAt float64
}

// Unloading ferries release vehicles at the destination terminal.
type Unloading struct{ At Terminal }

// Maintenance ferries are out of service at a terminal until Until.
type Maintenance struct {
	At    Terminal
	Until float64
}

func (Idle) State() FerryState        { return StateIdle }
func (Loading) State() FerryState     { return StateLoading }
func (Crossing) State() FerryState    { return StateCrossing }
func (Unloading) State() FerryState   { return StateUnloading }
func (Maintenance) State() FerryState { return StateMaintenance }

func (Idle) isPhase()        {}
func (Loading) isPhase()     {}
func (Crossing) isPhase()    {}
func (Unloading) isPhase()   {}
func (Maintenance) isPhase() {}

// Ferry is one vessel of the fleet.
type Ferry struct {
	ID       int
	Capacity int
	Phase    Phase
	Boarded  queue.Queue[Vehicle]

	// capacityTarget is a reduced capacity waiting for enough vehicles to
	// unload; zero when none is pending.
	capacityTarget int
}

// newFerry builds an idle ferry docked by fleet position: even slots at SLZ,
// odd slots at CUJ.
func newFerry(id, slot, capacity int) Ferry {
	return Ferry{ID: id, Capacity: capacity, Phase: Idle{At: terminalAt(slot)}}
}

// State returns the phase name.
func (f Ferry) State() FerryState {
	return f.Phase.State()
}

// Load returns the number of boarded vehicles.
func (f Ferry) Load() int {
	return f.Boarded.Len()
}

// Location returns the terminal the ferry is at. ok is false while crossing.
func (f Ferry) Location() (Terminal, bool) {
	switch p := f.Phase.(type) {
	case Idle:
		return p.At, true
	case Loading:
		return p.At, true
	case Unloading:
		return p.At, true
	case Maintenance:
		return p.At, true
	}
	return 0, false
}

// Direction returns the heading. ok is true only while crossing.
func (f Ferry) Direction() (Direction, bool) {
	if p, ok := f.Phase.(Crossing); ok {
		return p.Heading, true
	}
	return 0, false
}

// ScheduledArrival returns the docking time of a crossing ferry.
func (f Ferry) ScheduledArrival() (float64, bool) {
	if p, ok := f.Phase.(Crossing); ok {
		return p.ArrivesAt, true
	}
	return 0, false
}

// MaintenanceUntil returns the end of the maintenance window.
func (f Ferry) MaintenanceUntil() (float64, bool) {
	if p, ok := f.Phase.(Maintenance); ok {
		return p.Until, true
	}
	return 0, false
}

// withCapacity sets a new capacity without dropping boarded vehicles. A
// capacity below the current load is deferred until unloading catches up.
func (f Ferry) withCapacity(capacity int) Ferry {
	if f.Load() > capacity {
		f.Capacity = f.Load()
		f.capacityTarget = capacity
		return f
	}
	f.Capacity = capacity
	f.capacityTarget = 0
	return f
}

func (f Ferry) settleCapacity() Ferry {
	if f.capacityTarget > 0 && f.Load() <= f.capacityTarget {
		f.Capacity = f.capacityTarget
		f.capacityTarget = 0
	}
	return f
}

type ferryJSON struct {
	ID               int        `json:"id"`
	State            FerryState `json:"state"`
	Vehicles         []Vehicle  `json:"vehicles"`
	Capacity         int        `json:"capacity"`
	ArrivalTime      *float64   `json:"arrivalTime"`
	MaintenanceUntil *float64   `json:"maintenanceUntil"`
	Location         *Terminal  `json:"location"`
	Direction        *Direction `json:"direction"`
}

// MarshalJSON renders the ferry in the flat dashboard shape.
func (f Ferry) MarshalJSON() ([]byte, error) {
	out := ferryJSON{
		ID:       f.ID,
		State:    f.State(),
		Vehicles: f.Boarded.Slice(),
		Capacity: f.Capacity,
	}
	if eta, ok := f.ScheduledArrival(); ok {
		out.ArrivalTime = &eta
	}
	if until, ok := f.MaintenanceUntil(); ok {
		out.MaintenanceUntil = &until
	}
	if loc, ok := f.Location(); ok {
		out.Location = &loc
	}
	if dir, ok := f.Direction(); ok {
		out.Direction = &dir
	}
	return json.Marshal(out)
}

const (
	nightMaintenanceHour   = 20
	nightMaintenanceChance = 0.01
)

// tick carries the inputs of one transition and the state being built.
type tick struct {
	cfg   Config
	rng   Source
	now   float64
	delta float64
	next  *State
}

func (t *tick) stepFerry(f Ferry) Ferry {
	if !t.inMaintenanceWindow(f) {
		if t.nightMaintenance() {
			t.next.MaintenanceEvents++
			return t.enterMaintenance(f)
		}
		if t.breakdown(f) {
			t.next.FailureEvents++
			return t.enterMaintenance(f)
		}
	}

	switch p := f.Phase.(type) {
	case Maintenance:
		if t.now >= p.Until {
			f.Phase = Idle{At: p.At}
		}
	case Idle:
		if !t.next.Queues[p.At].Empty() {
			f.Phase = Loading{At: p.At}
		}
	case Loading:
		f = t.load(f, p.At)
	case Crossing:
		if t.now >= p.ArrivesAt {
			f.Phase = Unloading{At: p.Heading.To()}
		}
	case Unloading:
		f = t.unload(f, p.At)
	}
	return f
}

func (t *tick) inMaintenanceWindow(f Ferry) bool {
	until, ok := f.MaintenanceUntil()
	return ok && t.now < until
}

func (t *tick) nightMaintenance() bool {
	return t.cfg.HourAt(t.now) >= nightMaintenanceHour && t.rng.Float64() < nightMaintenanceChance
}

func (t *tick) breakdown(f Ferry) bool {
	if _, ok := f.Phase.(Maintenance); ok {
		return false
	}
	p := t.failureChance()
	return p > 0 && t.rng.Float64() < p
}

// failureChance spreads the daily breakdown probability over one tick.
func (t *tick) failureChance() float64 {
	daily := t.cfg.DowntimeProbability
	day := t.cfg.OperatingMinutes()
	if daily <= 0 || day <= 0 || t.delta <= 0 {
		return 0
	}
	if daily >= 1 {
		return 1
	}
	return 1 - math.Pow(1-daily, t.delta/day)
}

// enterMaintenance takes the ferry out of service. Boarded vehicles are
// dropped, not returned to the queue. A ferry caught mid-crossing is held at
// the terminal it departed from.
func (t *tick) enterMaintenance(f Ferry) Ferry {
	at, ok := f.Location()
	if !ok {
		dir, _ := f.Direction()
		at = dir.From()
	}
	f.Phase = Maintenance{At: at, Until: t.now + t.cfg.MaintenanceDuration}
	f.Boarded = queue.Queue[Vehicle]{}
	return f.settleCapacity()
}

func (t *tick) load(f Ferry, at Terminal) Ferry {
	waiting := t.next.Queues[at]
	n := min(f.Capacity-f.Load(), waiting.Len(), perTick(t.delta, t.cfg.EmbarkMinutes))
	if n > 0 {
		batch, rest := waiting.PopN(n)
		for _, v := range batch {
			t.next.TotalWaitTime += t.now - v.ArrivedAt
		}
		t.next.Queues[at] = rest
		f.Boarded = f.Boarded.Push(batch...)
	}

	if need, ok := t.cfg.departureThreshold(f.Capacity); ok && f.Load() >= need {
		f.Phase = Crossing{Heading: departing(at), ArrivesAt: t.now + t.cfg.CrossingMinutes}
	}
	return f
}

func (t *tick) unload(f Ferry, at Terminal) Ferry {
	n := min(perTick(t.delta, t.cfg.DisembarkMinutes), f.Load())
	_, f.Boarded = f.Boarded.PopN(n)
	t.next.VehiclesProcessed += n
	f = f.settleCapacity()
	if f.Boarded.Empty() {
		f.Phase = Idle{At: at}
	}
	return f
}

// perTick returns how many vehicles fit in delta minutes at perVehicle
// minutes each. At least one vehicle always moves; a non-positive service
// time means no limit.
func perTick(delta, perVehicle float64) int {
	if perVehicle <= 0 || math.IsNaN(perVehicle) {
		return math.MaxInt
	}
	n := math.Floor(delta / perVehicle)
	if math.IsNaN(n) || n < 1 {
		return 1
	}
	if n >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}
