package utils

import (
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// UniqueSortedInts returns a sorted copy of ids without duplicates.
func UniqueSortedInts(ids []int) []int {
	out := make([]int, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// JoinInts renders ids as a comma separated string ("3,7,12").
func JoinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// ParsePoints converts a stored point value ("1.50", "2", "0,5") into a float64.
// Point values must be finite and non-negative.
func ParsePoints(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty point value")
	}
	// Decimal commas are common in hand-edited banks
	s = strings.Replace(s, ",", ".", 1)
	points, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid point value %q: %w", raw, err)
	}
	if math.IsNaN(points) || math.IsInf(points, 0) {
		return 0, fmt.Errorf("point value %q is not a finite number", raw)
	}
	if points < 0 {
		return 0, fmt.Errorf("point value %q must not be negative", raw)
	}
	return points, nil
}

// HasAtMostDecimals reports whether v is written with no more than n decimal places.
func HasAtMostDecimals(v float64, n int) bool {
	scaled := v * math.Pow10(n)
	return math.Abs(scaled-math.Round(scaled)) < 1e-6
}

// SeedFromString derives a deterministic random seed from an arbitrary string
// (a generation ID, an exam title...).
func SeedFromString(s string) int64 {
	sum := sha256.Sum256([]byte(s))
	return BytesToInt(sum[:])
}

// BytesToInt converts a byte slice (e.g., from SHA256 sum) to an int64.
// Used for generating a deterministic seed from a hash.
func BytesToInt(b []byte) int64 {
	// Take the first 8 bytes (or less if available) to fit into int64
	var i int64
	for idx, val := range b {
		if idx >= 8 {
			break
		}
		i = (i << 8) | int64(val)
	}
	return i
}
