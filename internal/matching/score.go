// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package matching

import "math"

// Pair score weights. Keypoint geometry dominates because it is the only
// signal that verifies spatial structure rather than global appearance.
const (
	weightDeep = 0.35
	weightKP   = 0.55
	weightEdge = 0.10
)

// consistencyMin is the per-pair score above which a pair counts toward the
// consistency signal of its (product, video) aggregate.
const consistencyMin = 0.80

// strongBest accepts a (product, video) on a single pair alone.
const strongBest = 0.92

// Normalize scales v to unit L2 norm in place. Zero vectors stay zero.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// Cosine returns the cosine similarity of two L2-normalised vectors,
// clamped to [0,1]. Mismatched or empty vectors score zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return clamp01(dot)
}

// PairScore combines the three similarity signals into one pair score.
// When fallback is set, simKP carries a copy of simDeep because one side
// had no keypoint blob.
type PairScore struct {
	ImageID  string
	FrameID  string
	TS       float64
	SimDeep  float64
	SimKP    float64
	SimEdge  float64
	Fallback bool
}

// Score returns the weighted pair score.
func (p PairScore) Score() float64 {
	return clamp01(weightDeep*p.SimDeep + weightKP*p.SimKP + weightEdge*p.SimEdge)
}

// Aggregate is the per-(product, video) rollup of surviving pairs.
type Aggregate struct {
	Best           PairScore
	BestScore      float64
	Consistency    int
	DistinctImages int
}

// Aggregate rolls surviving pairs up into the accept decision inputs.
// Tie-break on equal best score: smallest frame timestamp, then smallest
// image ID lexicographically, so reruns pick the same evidence pair.
func AggregatePairs(pairs []PairScore) Aggregate {
	var agg Aggregate
	images := make(map[string]struct{})

	for _, p := range pairs {
		score := p.Score()
		images[p.ImageID] = struct{}{}
		if score >= consistencyMin {
			agg.Consistency++
		}

		switch {
		case score > agg.BestScore:
			agg.Best, agg.BestScore = p, score
		case score == agg.BestScore && agg.BestScore > 0:
			if p.TS < agg.Best.TS || (p.TS == agg.Best.TS && p.ImageID < agg.Best.ImageID) {
				agg.Best = p
			}
		}
	}

	agg.DistinctImages = len(images)
	return agg
}

// Accept applies the acceptance rules and returns the final score. A pair
// is accepted on strong best alone, or on a good best with corroborating
// consistency; small bonuses reward multi-pair and multi-image support.
func (a Aggregate) Accept(cfg Config) (float64, bool) {
	if a.BestScore == 0 {
		return 0, false
	}

	accepted := a.BestScore >= strongBest ||
		(a.BestScore >= cfg.MatchBestMin && a.Consistency >= cfg.MatchConsMin)
	if !accepted {
		return 0, false
	}

	score := a.BestScore
	if a.Consistency >= 3 {
		score += 0.02
	}
	if a.DistinctImages >= 2 {
		score += 0.02
	}
	score = math.Min(1, score)

	if score < cfg.MatchAccept {
		return 0, false
	}
	return score, true
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
