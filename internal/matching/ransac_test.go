// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package matching

import "testing"

func setFromPoints(pts [][2]float32) *KeypointSet {
	set := &KeypointSet{Kind: DescriptorAKAZE, Keypoints: make([]Keypoint, len(pts))}
	for i, p := range pts {
		set.Keypoints[i] = Keypoint{X: p[0], Y: p[1]}
	}
	return set
}

func identityMatches(n int) []pointMatch {
	matches := make([]pointMatch, n)
	for i := range matches {
		matches[i] = pointMatch{a: i, b: i}
	}
	return matches
}

func TestInlierRatio(t *testing.T) {
	src := setFromPoints([][2]float32{{0, 0}, {40, 0}, {0, 40}, {40, 40}, {20, 20}})

	t.Run("identity transform", func(t *testing.T) {
		if got := InlierRatio(src, src, identityMatches(5)); got != 1 {
			t.Errorf("InlierRatio() = %v, want 1", got)
		}
	})

	t.Run("pure translation", func(t *testing.T) {
		dst := setFromPoints([][2]float32{{5, 7}, {45, 7}, {5, 47}, {45, 47}, {25, 27}})
		if got := InlierRatio(src, dst, identityMatches(5)); got != 1 {
			t.Errorf("InlierRatio() = %v, want 1", got)
		}
	})

	t.Run("one gross outlier", func(t *testing.T) {
		dst := setFromPoints([][2]float32{{0, 0}, {40, 0}, {0, 40}, {40, 40}, {200, 200}})
		got := InlierRatio(src, dst, identityMatches(5))
		if got != 0.8 {
			t.Errorf("InlierRatio() = %v, want 0.8", got)
		}
	})

	t.Run("too few correspondences", func(t *testing.T) {
		if got := InlierRatio(src, src, identityMatches(1)); got != 0 {
			t.Errorf("InlierRatio() = %v, want 0", got)
		}
	})

	t.Run("deterministic across runs", func(t *testing.T) {
		dst := setFromPoints([][2]float32{{1, 1}, {41, 2}, {2, 41}, {41, 41}, {120, 5}})
		first := InlierRatio(src, dst, identityMatches(5))
		for i := 0; i < 3; i++ {
			if got := InlierRatio(src, dst, identityMatches(5)); got != first {
				t.Fatalf("run %d: InlierRatio() = %v, want %v", i, got, first)
			}
		}
	})
}
