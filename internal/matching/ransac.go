// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package matching

import (
	"math"
	"math/rand"
)

// RANSAC parameters. Coordinates are in the 64x64 space keypoints are
// extracted at; the inlier threshold is 3.0 pixels in that space. The seed
// is fixed so reruns over the same blobs produce the same inlier ratio.
const (
	ransacIterations = 128
	inlierThreshold  = 3.0
	ransacSeed       = 0x5eed
)

// InlierRatio estimates a similarity transform between matched keypoints
// with RANSAC and returns inliers / matches, clamped to [0,1]. Fewer than
// two correspondences cannot fix a transform and score zero.
func InlierRatio(imgKP, frameKP *KeypointSet, matches []pointMatch) float64 {
	if len(matches) < 2 {
		return 0
	}

	rng := rand.New(rand.NewSource(ransacSeed))
	bestInliers := 0

	for iter := 0; iter < ransacIterations; iter++ {
		i := rng.Intn(len(matches))
		j := rng.Intn(len(matches))
		if i == j {
			continue
		}

		t, ok := similarityFrom(
			imgKP.Keypoints[matches[i].a], frameKP.Keypoints[matches[i].b],
			imgKP.Keypoints[matches[j].a], frameKP.Keypoints[matches[j].b],
		)
		if !ok {
			continue
		}

		inliers := 0
		for _, m := range matches {
			src := imgKP.Keypoints[m.a]
			dst := frameKP.Keypoints[m.b]
			px, py := t.apply(float64(src.X), float64(src.Y))
			dx := px - float64(dst.X)
			dy := py - float64(dst.Y)
			if math.Hypot(dx, dy) <= inlierThreshold {
				inliers++
			}
		}
		if inliers > bestInliers {
			bestInliers = inliers
		}
	}

	return clamp01(float64(bestInliers) / float64(len(matches)))
}

// similarity is a 4-DOF transform: uniform scale, rotation, translation.
type similarity struct {
	a, b, tx, ty float64 // x' = a·x - b·y + tx ; y' = b·x + a·y + ty
}

func (t similarity) apply(x, y float64) (float64, float64) {
	return t.a*x - t.b*y + t.tx, t.b*x + t.a*y + t.ty
}

// similarityFrom solves the transform mapping two source points onto two
// destination points. Degenerate (coincident) sources are rejected.
func similarityFrom(s1, d1, s2, d2 Keypoint) (similarity, bool) {
	sx := float64(s2.X) - float64(s1.X)
	sy := float64(s2.Y) - float64(s1.Y)
	norm := sx*sx + sy*sy
	if norm < 1e-9 {
		return similarity{}, false
	}

	dx := float64(d2.X) - float64(d1.X)
	dy := float64(d2.Y) - float64(d1.Y)

	a := (sx*dx + sy*dy) / norm
	b := (sx*dy - sy*dx) / norm

	return similarity{
		a:  a,
		b:  b,
		tx: float64(d1.X) - a*float64(s1.X) + b*float64(s1.Y),
		ty: float64(d1.Y) - b*float64(s1.X) - a*float64(s1.Y),
	}, true
}
