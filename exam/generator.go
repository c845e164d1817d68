package exam

import (
	"context"
	"fmt"
	"log"
	"sort"

	"qbank-server/models"
	"qbank-server/utils"
)

// Status of a generation that produced at least one version.
type Status string

const (
	StatusComplete Status = "complete"
	StatusPartial  Status = "partial"
)

// QuestionSource is the read-only question store the generator draws its pool from.
type QuestionSource interface {
	QuestionsForSubjects(ctx context.Context, subjectIDs, chapterIDs []int) ([]models.Question, error)
}

// GenerationRequest describes one batch of exam versions to build.
type GenerationRequest struct {
	SubjectIDs       []int
	ChapterIDs       []int // Optional, narrows the pool
	PointsPerSubject map[int]float64
	NumVersions      int
	Seed             int64
}

// GenerationResult holds the unique versions, in the order they were found.
type GenerationResult struct {
	Versions  [][]models.Question
	Requested int
	Status    Status
	Message   string
}

// Generator builds exam versions from the question bank.
type Generator struct {
	Source QuestionSource
	// NewFinder returns the search strategy for one request. Defaults to NewRandomFinder.
	NewFinder func(seed int64) CombinationFinder
	// AttemptsPerVersion multiplies the number of attempts made per requested version.
	// 1 means exactly NumVersions attempts.
	AttemptsPerVersion int
}

// NewGenerator returns a Generator using the randomized finder.
func NewGenerator(source QuestionSource, attemptsPerVersion int) *Generator {
	return &Generator{
		Source: source,
		NewFinder: func(seed int64) CombinationFinder {
			return NewRandomFinder(seed)
		},
		AttemptsPerVersion: attemptsPerVersion,
	}
}

// Validate checks the request before any question is loaded.
func (r GenerationRequest) Validate() error {
	if len(r.SubjectIDs) == 0 {
		return &ConfigurationError{Reason: "at least one subject is required"}
	}
	if r.NumVersions <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("number of versions must be positive, got %d", r.NumVersions)}
	}
	positive := false
	for _, subjectID := range r.SubjectIDs {
		target := r.PointsPerSubject[subjectID]
		if target > 0 && target < Epsilon {
			// Already "reached" by an empty selection
			return &ConfigurationError{Reason: fmt.Sprintf("point target %g of subject %d is below the %g tolerance", target, subjectID, Epsilon)}
		}
		positive = positive || target > 0
	}
	if !positive {
		return &ConfigurationError{Reason: "no selected subject has a positive point target"}
	}
	return nil
}

// Generate loads the pool once and runs the requested number of attempts.
// Failures are returned as *ConfigurationError, *UnsatisfiableTargetError,
// ErrEmptyPool, or the context error when ctx ends first.
func (g *Generator) Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	if err := req.Validate(); err != nil {
		return GenerationResult{}, err
	}
	subjectIDs := uniqueInOrder(req.SubjectIDs)

	pool, err := g.Source.QuestionsForSubjects(ctx, subjectIDs, req.ChapterIDs)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("failed to load question pool: %w", err)
	}
	if len(pool) == 0 {
		return GenerationResult{}, ErrEmptyPool
	}
	bySubject := make(map[int][]models.Question)
	for _, q := range pool {
		bySubject[q.SubjectID] = append(bySubject[q.SubjectID], q)
	}

	newFinder := g.NewFinder
	if newFinder == nil {
		newFinder = func(seed int64) CombinationFinder { return NewRandomFinder(seed) }
	}
	finder := newFinder(req.Seed)

	attempts := req.NumVersions
	if g.AttemptsPerVersion > 1 {
		attempts *= g.AttemptsPerVersion
	}
	log.Printf("Generating %d version(s) from %d questions (subjects %v, seed %d, up to %d attempts)",
		req.NumVersions, len(pool), subjectIDs, req.Seed, attempts)

	seen := make(map[string]bool)
	versions := make([][]models.Question, 0, req.NumVersions)
	duplicates := 0
	for attempt := 0; attempt < attempts && len(versions) < req.NumVersions; attempt++ {
		if err := ctx.Err(); err != nil {
			return GenerationResult{}, fmt.Errorf("generation interrupted after %d attempt(s): %w", attempt, err)
		}
		version, err := buildVersion(ctx, finder, bySubject, subjectIDs, req.PointsPerSubject)
		if err != nil {
			return GenerationResult{}, err
		}
		if len(version) == 0 {
			continue
		}
		signature := Signature(version)
		if seen[signature] {
			duplicates++
			continue
		}
		seen[signature] = true
		versions = append(versions, version)
	}

	result := GenerationResult{
		Versions:  versions,
		Requested: req.NumVersions,
		Status:    StatusComplete,
		Message:   fmt.Sprintf("%d of %d generated.", len(versions), req.NumVersions),
	}
	if len(versions) < req.NumVersions {
		result.Status = StatusPartial
		result.Message += " Only these versions were distinct; add more questions to the bank to get more."
	}
	log.Printf("Generation finished: %s (%d duplicate attempt(s) discarded)", result.Message, duplicates)
	return result, nil
}

// buildVersion runs the finder once per subject with a positive target. The
// used set is shared across subjects so a version never repeats a question.
func buildVersion(ctx context.Context, finder CombinationFinder, bySubject map[int][]models.Question, subjectIDs []int, targets map[int]float64) ([]models.Question, error) {
	used := make(map[int]bool)
	var version []models.Question
	for _, subjectID := range subjectIDs {
		target := targets[subjectID]
		if !(target > 0) {
			continue
		}
		combination := finder.FindCombination(ctx, bySubject[subjectID], target, used)
		if combination == nil {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("generation interrupted on subject %d: %w", subjectID, err)
			}
			return nil, &UnsatisfiableTargetError{SubjectID: subjectID, Target: target}
		}
		for _, q := range combination {
			used[q.ID] = true
		}
		version = append(version, combination...)
	}
	return version, nil
}

// Signature is the canonical form of a version: its sorted question IDs joined by commas.
func Signature(version []models.Question) string {
	ids := make([]int, len(version))
	for i, q := range version {
		ids[i] = q.ID
	}
	sort.Ints(ids)
	return utils.JoinInts(ids)
}

// QuestionIDs lists the IDs of a version in order.
func QuestionIDs(version []models.Question) []int {
	ids := make([]int, len(version))
	for i, q := range version {
		ids[i] = q.ID
	}
	return ids
}

func uniqueInOrder(ids []int) []int {
	out := make([]int, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
