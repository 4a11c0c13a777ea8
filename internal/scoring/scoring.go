package scoring

import (
	"sort"
	"time"
)

// Weights are the score combination weights from the effective policy.
type Weights struct {
	Fair    float64
	Urgency float64
	LRS     float64
}

// Input carries everything the scorer needs for one booking's candidates.
// All of it is loaded up front; scoring itself is pure.
type Input struct {
	Now                 time.Time
	TimeStart           time.Time
	UrgentThresholdDays int
	FairnessWindowDays  int
	Weights             Weights

	// Hours is the fairness window workload per candidate.
	Hours map[string]float64
	// LastAssigned is the most recent assignment per candidate; absent
	// entries mean never assigned.
	LastAssigned map[string]time.Time
}

// Breakdown is the per-candidate score decomposition kept in the decision log.
type Breakdown struct {
	EmpCode   string  `json:"empCode"`
	Fairness  float64 `json:"fairness"`
	Urgency   float64 `json:"urgency"`
	LRS       float64 `json:"lrs"`
	DRPenalty float64 `json:"drPenalty"`
	Total     float64 `json:"total"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// UrgencyScore maps lead time to [0, 1]; closer to start means higher urgency.
func UrgencyScore(now, timeStart time.Time, urgentThresholdDays int) float64 {
	leadDays := timeStart.Sub(now).Hours() / 24.0
	u := float64(urgentThresholdDays)
	return clamp01((u - leadDays + 1) / (u + 1))
}

// FairnessScore maps window hours to [0, 1]; the least-loaded candidate gets 1.
func FairnessScore(hours map[string]float64, empCode string) float64 {
	first := true
	var minH, maxH float64
	for _, h := range hours {
		if first {
			minH, maxH = h, h
			first = false
			continue
		}
		if h < minH {
			minH = h
		}
		if h > maxH {
			maxH = h
		}
	}
	span := maxH - minH
	if span < 1 {
		span = 1
	}
	return 1 - (hours[empCode]-minH)/span
}

// LRSScore maps days since last assignment to [0, 1]; never assigned is 1.
func LRSScore(lastAssigned map[string]time.Time, empCode string, now time.Time, windowDays int) float64 {
	last, ok := lastAssigned[empCode]
	if !ok || last.IsZero() {
		return 1
	}
	days := now.Sub(last).Hours() / 24.0
	return clamp01(days / float64(windowDays))
}

// Score computes one candidate's breakdown. drPenalty is a non-positive
// adjustment supplied by the DR policy.
func Score(in Input, empCode string, drPenalty float64) Breakdown {
	b := Breakdown{
		EmpCode:   empCode,
		Fairness:  FairnessScore(in.Hours, empCode),
		Urgency:   UrgencyScore(in.Now, in.TimeStart, in.UrgentThresholdDays),
		LRS:       LRSScore(in.LastAssigned, empCode, in.Now, in.FairnessWindowDays),
		DRPenalty: drPenalty,
	}
	b.Total = in.Weights.Fair*b.Fairness + in.Weights.Urgency*b.Urgency + in.Weights.LRS*b.LRS + drPenalty
	return b
}

// Less orders breakdowns best-first: higher total, then higher fairness,
// then higher LRS, then lexicographic empCode.
func Less(a, b Breakdown) bool {
	if a.Total != b.Total {
		return a.Total > b.Total
	}
	if a.Fairness != b.Fairness {
		return a.Fairness > b.Fairness
	}
	if a.LRS != b.LRS {
		return a.LRS > b.LRS
	}
	return a.EmpCode < b.EmpCode
}

// Sort orders a slice of breakdowns best-first in place.
func Sort(bs []Breakdown) {
	sort.SliceStable(bs, func(i, j int) bool { return Less(bs[i], bs[j]) })
}
