// Package physiology simulates the agent's affect chemistry and the vital
// signals derived from it.
package physiology

const (
	// ChemicalMin and ChemicalMax bound every chemical scalar.
	ChemicalMin = 0.0
	ChemicalMax = 1.5

	// decayFactor is applied to every scalar after each event.
	decayFactor = 0.98
)

// EventKind names a chemical-affecting event.
type EventKind string

const (
	EventPositiveInteraction EventKind = "positive_interaction"
	EventNeglect             EventKind = "neglect"
	EventHostility           EventKind = "hostility"
	EventPraise              EventKind = "praise"
	EventBonding             EventKind = "bonding"
	EventCalm                EventKind = "calm"
	EventSpike               EventKind = "spike"
)

// Chemicals holds the four affect scalars.
type Chemicals struct {
	Cortisol   float64 `json:"cortisol"`
	Adrenaline float64 `json:"adrenaline"`
	Oxytocin   float64 `json:"oxytocin"`
	Serotonin  float64 `json:"serotonin"`
}

// Baseline is the calm starting point, also used by the soft reset.
func Baseline() Chemicals {
	return Chemicals{
		Cortisol:   0.3,
		Adrenaline: 0.2,
		Oxytocin:   0.5,
		Serotonin:  0.5,
	}
}

var eventDeltas = map[EventKind]Chemicals{
	EventPositiveInteraction: {Cortisol: -0.05, Oxytocin: 0.05, Serotonin: 0.05},
	EventNeglect:             {Cortisol: 0.1, Oxytocin: -0.05, Serotonin: -0.05},
	EventHostility:           {Cortisol: 0.15, Adrenaline: 0.1, Serotonin: -0.05},
	EventPraise:              {Oxytocin: 0.1, Serotonin: 0.05},
	EventBonding:             {Cortisol: -0.1, Oxytocin: 0.15, Serotonin: 0.1},
	EventCalm:                {Cortisol: -0.1, Adrenaline: -0.05, Serotonin: 0.1},
	EventSpike:               {Cortisol: 0.2, Adrenaline: 0.2, Serotonin: -0.1},
}

// KnownEvent reports whether kind has an entry in the delta table.
func KnownEvent(kind EventKind) bool {
	_, ok := eventDeltas[kind]
	return ok
}

// Apply adds the deltas for kind, decays every scalar by 2% and clamps the
// result to [ChemicalMin, ChemicalMax]. Unknown kinds only decay and clamp.
func (c *Chemicals) Apply(kind EventKind) {
	d := eventDeltas[kind]
	c.Cortisol = settle(c.Cortisol + d.Cortisol)
	c.Adrenaline = settle(c.Adrenaline + d.Adrenaline)
	c.Oxytocin = settle(c.Oxytocin + d.Oxytocin)
	c.Serotonin = settle(c.Serotonin + d.Serotonin)
}

func settle(v float64) float64 {
	return clamp(v*decayFactor, ChemicalMin, ChemicalMax)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
