// Package model holds the data types shared by every component of Rogue
// Hunter: the per-process sample record, the rolling sample batch, the
// persisted tracking event/snapshot/forensic rows, and the socket message
// union.
package model

// MetricValue is a point-in-time counter together with the low/high bounds
// observed for it across the ring buffer window. Before enrichment, low and
// high both equal current.
type MetricValue[T int | int32 | int64 | float64] struct {
	Current T `json:"current"`
	Low     T `json:"low"`
	High    T `json:"high"`
}

// NewMetricValue returns a MetricValue with low and high both set to v, the
// state every field is in before C2 enrichment runs.
func NewMetricValue[T int | int32 | int64 | float64](v T) MetricValue[T] {
	return MetricValue[T]{Current: v, Low: v, High: v}
}

// Widen extends low/high to include v. Called once per earlier batch while
// walking the ring buffer window.
func (m *MetricValue[T]) Widen(v T) {
	if v < m.Low {
		m.Low = v
	}
	if v > m.High {
		m.High = v
	}
}

// State is the process state enum, ordered by severity (idle is least
// severe, stuck is most). The ordering backs MetricValueStr's low/high
// selection for the "state" field and the state-multiplier table in
// collector/scoring.go.
type State string

const (
	StateIdle     State = "idle"
	StateSleeping State = "sleeping"
	StateRunning  State = "running"
	StateStopped  State = "stopped"
	StateHalted   State = "halted"
	StateZombie   State = "zombie"
	StateStuck    State = "stuck"
)

var stateSeverity = map[State]int{
	StateIdle:     0,
	StateSleeping: 1,
	StateRunning:  2,
	StateStopped:  3,
	StateHalted:   4,
	StateZombie:   5,
	StateStuck:    6,
}

// Severity returns the ordinal rank of a state under the strictly-ascending
// ordering idle < sleeping < running < stopped < halted < zombie < stuck.
// Unknown states rank below idle so they never win a "high" comparison.
func (s State) Severity() int {
	if r, ok := stateSeverity[s]; ok {
		return r
	}
	return -1
}

// Band is the severity bucket derived from a ProcessScore's score, ordered
// low < medium < elevated < high < critical.
type Band string

const (
	BandLow      Band = "low"
	BandMedium   Band = "medium"
	BandElevated Band = "elevated"
	BandHigh     Band = "high"
	BandCritical Band = "critical"
)

var bandSeverity = map[Band]int{
	BandLow:      0,
	BandMedium:   1,
	BandElevated: 2,
	BandHigh:     3,
	BandCritical: 4,
}

// Severity returns the ordinal rank of a band under the strictly-ascending
// ordering low < medium < elevated < high < critical.
func (b Band) Severity() int {
	if r, ok := bandSeverity[b]; ok {
		return r
	}
	return -1
}

// MetricValueStr is the string-valued analogue of MetricValue, used for
// "state" and "band" fields whose low/high are picked by severity ordering
// rather than alphabetically.
type MetricValueStr struct {
	Current string `json:"current"`
	Low     string `json:"low"`
	High    string `json:"high"`
}

// NewStateValue returns a MetricValueStr for a State field, low == high == current.
func NewStateValue(s State) MetricValueStr {
	return MetricValueStr{Current: string(s), Low: string(s), High: string(s)}
}

// NewBandValue returns a MetricValueStr for a Band field, low == high == current.
func NewBandValue(b Band) MetricValueStr {
	return MetricValueStr{Current: string(b), Low: string(b), High: string(b)}
}

// WidenState extends low/high to include s, ranking states by State.Severity.
func (m *MetricValueStr) WidenState(s State) {
	if State(s).Severity() < State(m.Low).Severity() {
		m.Low = string(s)
	}
	if State(s).Severity() > State(m.High).Severity() {
		m.High = string(s)
	}
}

// WidenBand extends low/high to include b, ranking bands by Band.Severity.
func (m *MetricValueStr) WidenBand(b Band) {
	if Band(b).Severity() < Band(m.Low).Severity() {
		m.Low = string(b)
	}
	if Band(b).Severity() > Band(m.High).Severity() {
		m.High = string(b)
	}
}

// DominantResource identifies which resource share drives a process's
// disproportionality score.
type DominantResource string

const (
	DominantCPU     DominantResource = "cpu"
	DominantGPU     DominantResource = "gpu"
	DominantMemory  DominantResource = "mem"
	DominantDisk    DominantResource = "disk"
	DominantWakeups DominantResource = "wakeups"
	DominantNone    DominantResource = "none"
)
