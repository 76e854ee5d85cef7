package physiology

import "github.com/sipeed/connor/pkg/logger"

// Body couples the chemical simulator with the vital monitor. It is not safe
// for concurrent use; the lifecycle controller serialises access.
type Body struct {
	Chemicals Chemicals `json:"chemicals"`
	Vitals    Vitals    `json:"vitals"`
}

// NewBody returns a living body at the chemical baseline.
func NewBody(age int) Body {
	b := Body{Chemicals: Baseline(), Vitals: InitialVitals(age)}
	b.Vitals.Recompute(b.Chemicals, age)
	return b
}

// ApplyEvent runs one chemical event followed by the vital check and
// reports whether the terminal condition now holds.
func (b *Body) ApplyEvent(kind EventKind, age int) bool {
	if !KnownEvent(kind) {
		logger.DebugCF("physiology", "Unknown event kind, decaying only", map[string]any{"event": string(kind)})
	}
	b.Chemicals.Apply(kind)
	terminal := b.Vitals.Recompute(b.Chemicals, age)
	logger.DebugCF("physiology", "Event applied", map[string]any{
		"event":    string(kind),
		"bpm":      b.Vitals.BPM,
		"bp_index": b.Vitals.BPIndex,
		"terminal": terminal,
	})
	return terminal
}

// Reset performs the soft reset: death is counted, vitals and chemistry
// return to baseline at the given juvenile age.
func (b *Body) Reset(age int) {
	b.Chemicals = Baseline()
	b.Vitals.SoftReset(age)
}
