// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package matching

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
)

// Keypoint blob layout: a flat sequence of fixed-size records, each
// starting with the keypoint position as two float32 (x, y) in 64x64
// coordinates, followed by the descriptor. The record size identifies the
// descriptor family:
//
//	AKAZE (binary, 61 bytes):  8 + 61  = 69 bytes per record
//	SIFT  (float32, 128 dims): 8 + 512 = 520 bytes per record
const (
	akazeDescSize = 61
	siftDescDims  = 128

	akazeRecordSize = 8 + akazeDescSize
	siftRecordSize  = 8 + siftDescDims*4
)

// DescriptorKind identifies the descriptor family in a blob.
type DescriptorKind int

const (
	DescriptorAKAZE DescriptorKind = iota
	DescriptorSIFT
)

// Keypoint is one detected feature point with its descriptor. Exactly one
// of Binary or Float is populated, per the blob's kind.
type Keypoint struct {
	X, Y   float32
	Binary []byte
	Float  []float32
}

// KeypointSet is a parsed blob.
type KeypointSet struct {
	Kind      DescriptorKind
	Keypoints []Keypoint
}

// ParseKeypointBlob sniffs the descriptor family from the record size and
// decodes the blob. SIFT is tried first: its record size is not a multiple
// of AKAZE's, so a valid SIFT blob cannot be mistaken for AKAZE unless the
// length is divisible by both, which the larger record wins.
func ParseKeypointBlob(data []byte) (*KeypointSet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty keypoint blob")
	}

	switch {
	case len(data)%siftRecordSize == 0:
		return parseSIFT(data), nil
	case len(data)%akazeRecordSize == 0:
		return parseAKAZE(data), nil
	default:
		return nil, fmt.Errorf("keypoint blob length %d matches no known record size", len(data))
	}
}

func parseAKAZE(data []byte) *KeypointSet {
	n := len(data) / akazeRecordSize
	set := &KeypointSet{Kind: DescriptorAKAZE, Keypoints: make([]Keypoint, n)}
	for i := 0; i < n; i++ {
		rec := data[i*akazeRecordSize:]
		set.Keypoints[i] = Keypoint{
			X:      math.Float32frombits(binary.LittleEndian.Uint32(rec[0:4])),
			Y:      math.Float32frombits(binary.LittleEndian.Uint32(rec[4:8])),
			Binary: rec[8 : 8+akazeDescSize],
		}
	}
	return set
}

func parseSIFT(data []byte) *KeypointSet {
	n := len(data) / siftRecordSize
	set := &KeypointSet{Kind: DescriptorSIFT, Keypoints: make([]Keypoint, n)}
	for i := 0; i < n; i++ {
		rec := data[i*siftRecordSize:]
		desc := make([]float32, siftDescDims)
		for d := 0; d < siftDescDims; d++ {
			desc[d] = math.Float32frombits(binary.LittleEndian.Uint32(rec[8+d*4:]))
		}
		set.Keypoints[i] = Keypoint{
			X:     math.Float32frombits(binary.LittleEndian.Uint32(rec[0:4])),
			Y:     math.Float32frombits(binary.LittleEndian.Uint32(rec[4:8])),
			Float: desc,
		}
	}
	return set
}

// pointMatch pairs a keypoint index in the image set with its nearest
// neighbour in the frame set.
type pointMatch struct {
	a, b int
}

// matchRatio is the Lowe ratio test threshold.
const matchRatio = 0.75

// MatchDescriptors computes nearest-neighbour correspondences between two
// sets of the same kind, filtered by the ratio test. Mismatched kinds
// produce no correspondences.
func MatchDescriptors(a, b *KeypointSet) []pointMatch {
	if a.Kind != b.Kind || len(a.Keypoints) == 0 || len(b.Keypoints) < 2 {
		return nil
	}

	var matches []pointMatch
	for i := range a.Keypoints {
		best, second := math.MaxFloat64, math.MaxFloat64
		bestIdx := -1
		for j := range b.Keypoints {
			d := descriptorDistance(a.Kind, &a.Keypoints[i], &b.Keypoints[j])
			if d < best {
				second = best
				best, bestIdx = d, j
			} else if d < second {
				second = d
			}
		}
		if bestIdx >= 0 && second > 0 && best < matchRatio*second {
			matches = append(matches, pointMatch{a: i, b: bestIdx})
		}
	}
	return matches
}

func descriptorDistance(kind DescriptorKind, a, b *Keypoint) float64 {
	if kind == DescriptorAKAZE {
		return float64(hamming(a.Binary, b.Binary))
	}
	var sum float64
	for i := range a.Float {
		d := float64(a.Float[i]) - float64(b.Float[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func hamming(a, b []byte) int {
	n := 0
	for i := range a {
		n += bits.OnesCount8(a[i] ^ b[i])
	}
	return n
}
