// Package metrics accumulates scalar summaries over sampled observables.
package metrics

import "math"

// Sample is one coordinator-side reading of the global observables.
type Sample struct {
	Time     float64
	Kinetic  float64
	LJ       float64
	Coulomb  float64
	Total    float64
	Pressure float64
	Momentum float64
}

// Metric folds a stream of samples into one value.
type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

// Field selects one observable of a sample.
type Field func(Sample) float64

func Kinetic(s Sample) float64  { return s.Kinetic }
func Total(s Sample) float64    { return s.Total }
func Pressure(s Sample) float64 { return s.Pressure }
func Momentum(s Sample) float64 { return s.Momentum }

type Mean struct {
	name    string
	field   Field
	sum     float64
	samples int
}

func NewMean(name string, field Field) *Mean {
	return &Mean{name: name, field: field}
}

func (m *Mean) Name() string { return m.name }

func (m *Mean) Observe(s Sample) {
	m.sum += m.field(s)
	m.samples++
}

func (m *Mean) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *Mean) Reset() {
	m.sum = 0
	m.samples = 0
}

// EnergyDrift is the largest deviation of the total energy from its first
// observed value, relative to that value. An initial total of zero makes
// the deviation absolute.
type EnergyDrift struct {
	name     string
	initial  float64
	maxDrift float64
	samples  int
}

func NewEnergyDrift() *EnergyDrift {
	return &EnergyDrift{name: "energy_drift"}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(s Sample) {
	if e.samples == 0 {
		e.initial = s.Total
	}
	e.samples++

	drift := math.Abs(s.Total - e.initial)
	if e.initial != 0 {
		drift /= math.Abs(e.initial)
	}
	e.maxDrift = math.Max(e.maxDrift, drift)
}

func (e *EnergyDrift) Value() float64 {
	return e.maxDrift
}

func (e *EnergyDrift) Reset() {
	e.initial = 0
	e.maxDrift = 0
	e.samples = 0
}

// Set observes every sample with each of its metrics.
type Set []Metric

// Default returns the metrics reported at the end of a run.
func Default() Set {
	return Set{
		NewEnergyDrift(),
		NewMean("mean_kinetic", Kinetic),
		NewMean("mean_total", Total),
		NewMean("mean_pressure", Pressure),
		NewMean("mean_momentum", Momentum),
	}
}

func (set Set) Observe(s Sample) {
	for _, m := range set {
		m.Observe(s)
	}
}

// Values returns the current value of each metric by name.
func (set Set) Values() map[string]float64 {
	out := make(map[string]float64, len(set))
	for _, m := range set {
		out[m.Name()] = m.Value()
	}
	return out
}
