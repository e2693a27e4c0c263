package sim

import "fmt"

// Status is the three-level health of the route.
type Status string

const (
	StatusNormal   Status = "NORMAL"
	StatusAlert    Status = "ALERT"
	StatusCollapse Status = "COLLAPSE"
)

const (
	collapseQueue       = 100
	collapseUtilization = 90.0
	collapseWait        = 90.0
	alertQueue          = 50
	alertUtilization    = 75.0
	alertWait           = 45.0
)

// AverageQueueLength is the mean of the per-tick queue samples.
func AverageQueueLength(s State) float64 {
	n := s.QueueHistory.Len()
	if n == 0 {
		return 0
	}
	var sum int
	for v := range s.QueueHistory.All() {
		sum += v
	}
	return float64(sum) / float64(n)
}

// AverageWaitTime is total wait over vehicles processed, 0 before any.
func AverageWaitTime(s State) float64 {
	if s.VehiclesProcessed == 0 {
		return 0
	}
	return s.TotalWaitTime / float64(s.VehiclesProcessed)
}

// AverageUtilization returns the fleet load in percent. Idle ferries and
// ferries in maintenance contribute zero but still count in the fleet size.
func AverageUtilization(s State) float64 {
	if len(s.Ferries) == 0 {
		return 0
	}
	var sum float64
	for _, f := range s.Ferries {
		switch f.State() {
		case StateIdle, StateMaintenance:
			continue
		}
		if f.Capacity > 0 {
			sum += float64(f.Load()) / float64(f.Capacity) * 100
		}
	}
	return sum / float64(len(s.Ferries))
}

// ClassifyStatus maps queue length, utilization (percent) and average wait
// (minutes) to a status level.
func ClassifyStatus(queueLength int, utilization, wait float64) Status {
	switch {
	case queueLength > collapseQueue || utilization > collapseUtilization || wait > collapseWait:
		return StatusCollapse
	case queueLength > alertQueue || utilization > alertUtilization || wait > alertWait:
		return StatusAlert
	default:
		return StatusNormal
	}
}

// Status classifies the current snapshot.
func (s State) Status() Status {
	return ClassifyStatus(s.QueueLength(), AverageUtilization(s), AverageWaitTime(s))
}

// StatusMessage is the operator-facing line for the current status.
func StatusMessage(s State) string {
	switch s.Status() {
	case StatusCollapse:
		if n := s.CountState(StateMaintenance); n > 0 {
			return fmt.Sprintf("maintenance active on %d ferries, capacity reduced", n)
		}
		return "operating above capacity, critical bottleneck detected"
	case StatusAlert:
		return "high demand, monitor operations closely"
	default:
		return "operating within normal parameters"
	}
}

// AlertKind identifies a collapse condition.
type AlertKind string

const (
	AlertCriticalQueue   AlertKind = "critical_queue"
	AlertBottleneck      AlertKind = "bottleneck"
	AlertExtremeWaitTime AlertKind = "extreme_wait"
)

// Alert is one active collapse condition.
type Alert struct {
	Kind    AlertKind `json:"kind"`
	Message string    `json:"message"`
}

// Alerts lists the collapse conditions currently met.
func Alerts(s State) []Alert {
	var alerts []Alert
	if q := s.QueueLength(); q > collapseQueue {
		alerts = append(alerts, Alert{AlertCriticalQueue, fmt.Sprintf("critical queue: %d vehicles waiting", q)})
	}
	if u := AverageUtilization(s); u > collapseUtilization {
		alerts = append(alerts, Alert{AlertBottleneck, fmt.Sprintf("bottleneck: average utilization %.0f%%", u)})
	}
	if w := AverageWaitTime(s); w > collapseWait {
		alerts = append(alerts, Alert{AlertExtremeWaitTime, fmt.Sprintf("extreme delay: average wait %.0f minutes", w)})
	}
	return alerts
}

// Summary is the end-of-run report, derived on demand.
type Summary struct {
	TotalTime         float64 `json:"totalTime"`
	AvgQueueLength    float64 `json:"avgQueueLength"`
	MaxQueueLength    int     `json:"maxQueueLength"`
	AvgWaitTime       float64 `json:"avgWaitTime"`
	VehiclesProcessed int     `json:"vehiclesProcessed"`
	VehiclesRejected  int     `json:"vehiclesRejected"`
	AvgUtilization    float64 `json:"avgUtilization"`
	MaintenanceEvents int     `json:"maintenanceEvents"`
	FailureEvents     int     `json:"failureEvents"`
	PeakEvents        int     `json:"peakEvents"`
}

// Summarize builds the report for s. Nothing is ever rejected, so
// VehiclesRejected is always zero.
func Summarize(s State) Summary {
	return Summary{
		TotalTime:         s.Time,
		AvgQueueLength:    AverageQueueLength(s),
		MaxQueueLength:    s.MaxQueueLength,
		AvgWaitTime:       AverageWaitTime(s),
		VehiclesProcessed: s.VehiclesProcessed,
		AvgUtilization:    AverageUtilization(s),
		MaintenanceEvents: s.MaintenanceEvents,
		FailureEvents:     s.FailureEvents,
		PeakEvents:        s.PeakEvents,
	}
}

// Grade is the overall verdict on a finished run.
type Grade string

const (
	GradeHealthy   Grade = "HEALTHY"
	GradeAttention Grade = "ATTENTION"
	GradeCritical  Grade = "CRITICAL"
)

// Evaluation is the verdict plus operator guidance.
type Evaluation struct {
	Grade    Grade    `json:"grade"`
	Message  string   `json:"message"`
	Warnings []string `json:"warnings,omitempty"`
}

// Evaluate grades a summary.
func Evaluate(sum Summary) Evaluation {
	var ev Evaluation
	switch {
	case sum.MaxQueueLength > 150 || sum.AvgUtilization > 90:
		ev = Evaluation{Grade: GradeCritical, Message: "route collapsed during the run; add capacity or cut service times"}
	case sum.MaxQueueLength > 80 || sum.AvgUtilization > 75:
		ev = Evaluation{Grade: GradeAttention, Message: "route ran close to its limit; adjust before peaks saturate it"}
	default:
		ev = Evaluation{Grade: GradeHealthy, Message: "route ran within expected parameters"}
	}
	if sum.AvgWaitTime > collapseWait {
		ev.Warnings = append(ev.Warnings, fmt.Sprintf("average wait of %.0f minutes exceeds 1h30", sum.AvgWaitTime))
	}
	return ev
}
