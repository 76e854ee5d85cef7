package physiology

import "math"

const (
	restingBPM = 70
	minBPM     = 40
	maxBPM     = 180
	maxBPIndex = 3.0

	// terminalBPM must be exceeded, together with the age threshold, for death.
	terminalBPM = 150
)

// Vitals is the physiological snapshot derived from chemistry and age.
type Vitals struct {
	BPM        int     `json:"bpm"`
	BPIndex    float64 `json:"bp_index"`
	Age        int     `json:"age"`
	IsAlive    bool    `json:"is_alive"`
	DeathCount int     `json:"death_count"`
}

// InitialVitals is a living agent at rest.
func InitialVitals(age int) Vitals {
	return Vitals{BPM: restingBPM, Age: age, IsAlive: true}
}

// HeartRate derives bpm from the chemical state.
func HeartRate(c Chemicals) int {
	raw := (c.Adrenaline-c.Oxytocin)*60 + c.Cortisol*40
	bpm := restingBPM + int(math.Round(raw))
	if bpm < minBPM {
		return minBPM
	}
	if bpm > maxBPM {
		return maxBPM
	}
	return bpm
}

// PressureIndex derives the blood-pressure index from the chemical state.
func PressureIndex(c Chemicals) float64 {
	return clamp(c.Cortisol*1.5+c.Adrenaline, 0, maxBPIndex)
}

// VulnerabilityThreshold is the pressure index an agent of this age can bear.
func VulnerabilityThreshold(age int) float64 {
	switch {
	case age < 20:
		return 2.5
	case age < 35:
		return 1.8
	case age < 50:
		return 1.3
	default:
		return 1.0
	}
}

// IsTerminal reports the heart-attack condition.
func IsTerminal(bpm int, bpIndex float64, age int) bool {
	return bpIndex > VulnerabilityThreshold(age) && bpm > terminalBPM
}

// Recompute refreshes BPM, BPIndex and Age from c and reports whether the
// resulting signals are terminal. It does not change IsAlive or DeathCount.
func (v *Vitals) Recompute(c Chemicals, age int) bool {
	v.BPM = HeartRate(c)
	v.BPIndex = PressureIndex(c)
	v.Age = age
	return IsTerminal(v.BPM, v.BPIndex, age)
}

// SoftReset records a death and restores the juvenile baseline.
func (v *Vitals) SoftReset(age int) {
	v.IsAlive = false
	v.DeathCount++
	v.BPM = restingBPM
	v.BPIndex = 0
	v.Age = age
	v.IsAlive = true
}
