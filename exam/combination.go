package exam

import (
	"context"
	"math"
	"math/rand"

	"qbank-server/models"
)

// Epsilon is the tolerance used when comparing accumulated point sums to a target.
const Epsilon = 0.001

// CombinationFinder picks questions whose point values add up to a target.
// A nil result means no combination was found; an empty non-nil result means
// the target was already reached.
type CombinationFinder interface {
	FindCombination(ctx context.Context, pool []models.Question, target float64, excluded map[int]bool) []models.Question
}

// RandomFinder is a depth-first subset-sum search that reshuffles the candidates
// at every level, so repeated calls over the same pool surface different combinations.
// It stops at the first combination found. Not safe for concurrent use.
type RandomFinder struct {
	rng *rand.Rand
}

// NewRandomFinder returns a finder driven by its own seeded random source.
func NewRandomFinder(seed int64) *RandomFinder {
	return &RandomFinder{rng: rand.New(rand.NewSource(seed))}
}

// FindCombination never modifies pool or excluded. It returns nil when ctx is done.
func (f *RandomFinder) FindCombination(ctx context.Context, pool []models.Question, target float64, excluded map[int]bool) []models.Question {
	used := make(map[int]bool, len(excluded))
	available := 0.0
	for id, ok := range excluded {
		if ok {
			used[id] = true
		}
	}
	for _, q := range pool {
		if !used[q.ID] {
			available += q.Points
		}
	}
	// Nothing below can reach a target larger than everything left in the pool
	if available < target-Epsilon {
		return nil
	}
	return f.search(ctx, pool, target, used)
}

func (f *RandomFinder) search(ctx context.Context, candidates []models.Question, remaining float64, used map[int]bool) []models.Question {
	if math.Abs(remaining) < Epsilon {
		return []models.Question{}
	}
	if remaining < -Epsilon || len(candidates) == 0 || ctx.Err() != nil {
		return nil
	}

	shuffled := make([]models.Question, len(candidates))
	copy(shuffled, candidates)
	f.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	for i, q := range shuffled {
		if used[q.ID] {
			continue
		}
		// Would overshoot, the subtree cannot succeed
		if q.Points > remaining+Epsilon {
			continue
		}
		used[q.ID] = true
		rest := f.search(ctx, shuffled[i+1:], remaining-q.Points, used)
		if rest != nil {
			return append([]models.Question{q}, rest...)
		}
		delete(used, q.ID)
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// PointsOf sums the point values of questions.
func PointsOf(questions []models.Question) float64 {
	total := 0.0
	for _, q := range questions {
		total += q.Points
	}
	return total
}
