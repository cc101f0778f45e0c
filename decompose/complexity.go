package decompose

import (
	"time"

	"github.com/hupe1980/toolmesh/core"
)

// ComplexityScore computes
//
//	10*count + 5*avgPriority + 20*hasVerification + 15*hasAnalysis
//
// and maps it onto low (<=30), medium (<=60), high (<=90) or critical.
func ComplexityScore(subs []core.SubQuestion) (float64, core.Complexity) {
	if len(subs) == 0 {
		return 0, core.ComplexityLow
	}
	var (
		prioritySum            int
		hasVerify, hasAnalysis bool
	)
	for _, sq := range subs {
		prioritySum += sq.Priority
		switch sq.Type {
		case core.TypeVerification:
			hasVerify = true
		case core.TypeAnalysis:
			hasAnalysis = true
		}
	}
	avg := float64(prioritySum) / float64(len(subs))

	score := 10*float64(len(subs)) + 5*avg
	if hasVerify {
		score += 20
	}
	if hasAnalysis {
		score += 15
	}
	return score, complexityLevel(score)
}

func complexityLevel(score float64) core.Complexity {
	switch {
	case score <= 30:
		return core.ComplexityLow
	case score <= 60:
		return core.ComplexityMedium
	case score <= 90:
		return core.ComplexityHigh
	default:
		return core.ComplexityCritical
	}
}

var timeMultiplier = map[core.Complexity]float64{
	core.ComplexityLow:      1,
	core.ComplexityMedium:   1.5,
	core.ComplexityHigh:     2,
	core.ComplexityCritical: 3,
}

// EstimateTime returns count*perStep*multiplier(complexity), capped at max
// when max > 0.
func EstimateTime(count int, c core.Complexity, perStep, max time.Duration) time.Duration {
	est := time.Duration(float64(count) * float64(perStep) * timeMultiplier[c])
	if max > 0 && est > max {
		return max
	}
	return est
}
