package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"qbank-server/exam"
	"qbank-server/models"
	"qbank-server/utils"
)

// SavedExamStore persists generated versions and reads them back.
type SavedExamStore interface {
	SaveGeneratedExams(ctx context.Context, parentExamID int, versions [][]int, exportConfig map[int]models.SubjectDetails) ([]int, error)
	ListSavedExams(ctx context.Context, filter models.SavedExamFilter) ([]models.SavedExamSummary, error)
	GetSavedExam(ctx context.Context, id int) (models.SavedExamDetail, error)
}

// QuestionLister serves the question bank listing.
type QuestionLister interface {
	ListQuestions(ctx context.Context, subjectID, chapterID int) ([]models.Question, error)
}

// EventLogger records an operator-visible event (db.LogAdminEvent in production).
type EventLogger func(actor, action, target, notes string)

// GenerateExamVersions builds unique exam versions matching per-subject point targets.
// POST /api/v1/generate-exam-versions
func GenerateExamVersions(gen *exam.Generator, timeout time.Duration, maxVersions func() int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.GenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		numVersions := 1
		if req.NumVersions != nil {
			numVersions = *req.NumVersions
		}
		if limit := maxVersions(); numVersions > limit {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("At most %d versions can be generated per request", limit)})
			return
		}

		generationID := uuid.New()
		seed := utils.SeedFromString(generationID.String())
		if req.Seed != nil {
			seed = *req.Seed
		}

		ctx := c.Request.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		result, err := gen.Generate(ctx, exam.GenerationRequest{
			SubjectIDs:       req.SubjectIDs,
			ChapterIDs:       req.ChapterIDs,
			PointsPerSubject: req.PointsPerSubject,
			NumVersions:      numVersions,
			Seed:             seed,
		})
		if err != nil {
			writeGenerationError(c, generationID.String(), err)
			return
		}

		log.Printf("Generation %s by %s: %s", generationID, c.GetString("user_email"), result.Message)
		c.JSON(http.StatusOK, models.GenerateResponse{
			GenerationID: generationID.String(),
			Seed:         seed,
			Status:       string(result.Status),
			Requested:    result.Requested,
			Generated:    len(result.Versions),
			Versions:     result.Versions,
			Message:      result.Message,
		})
	}
}

func writeGenerationError(c *gin.Context, generationID string, err error) {
	var configErr *exam.ConfigurationError
	var unsatisfiable *exam.UnsatisfiableTargetError
	switch {
	case errors.As(err, &configErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": configErr.Error()})
	case errors.As(err, &unsatisfiable):
		c.JSON(http.StatusBadRequest, gin.H{"error": unsatisfiable.Error(), "subject_id": unsatisfiable.SubjectID})
	case errors.Is(err, exam.ErrEmptyPool):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		log.Printf("Generation %s timed out: %v", generationID, err)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Generation took too long, try fewer versions or a smaller bank selection"})
	default:
		log.Printf("Generation %s failed: %v", generationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate exam versions"})
	}
}

// SaveGeneratedExams stores accepted versions as subjects of a parent exam.
// POST /api/v1/save-generated-exams
func SaveGeneratedExams(store SavedExamStore, logEvent EventLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SaveGeneratedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(req.Versions) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "At least one version is required"})
			return
		}
		for i, version := range req.Versions {
			if len(version) == 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Version %d has no questions", i+1)})
				return
			}
			if len(utils.UniqueSortedInts(version)) != len(version) {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Version %d repeats a question", i+1)})
				return
			}
		}

		ids, err := store.SaveGeneratedExams(c.Request.Context(), req.ParentExamID, req.Versions, req.ExportConfig)
		if err != nil {
			if errors.Is(err, exam.ErrParentExamNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			log.Printf("Error saving generated exams for parent %d: %v", req.ParentExamID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save generated exams"})
			return
		}

		logEvent(c.GetString("user_email"), "save_generated_exams", strconv.Itoa(req.ParentExamID),
			fmt.Sprintf("Saved %d subject(s): %s", len(ids), utils.JoinInts(ids)))
		c.JSON(http.StatusCreated, gin.H{
			"message": fmt.Sprintf("%d subject(s) created for exam %d", len(ids), req.ParentExamID),
			"ids":     ids,
		})
	}
}

// ListSavedSubjects lists saved subjects, newest first.
// GET /api/v1/saved-subjects?promotionId=&parentExamId=&examType=
func ListSavedSubjects(store SavedExamStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter models.SavedExamFilter
		var ok bool
		if filter.PromotionID, ok = optionalIntQuery(c, "promotionId"); !ok {
			return
		}
		if filter.ParentExamID, ok = optionalIntQuery(c, "parentExamId"); !ok {
			return
		}
		filter.ExamType = c.Query("examType")

		summaries, err := store.ListSavedExams(c.Request.Context(), filter)
		if err != nil {
			log.Printf("Error listing saved subjects: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve saved subjects"})
			return
		}
		if summaries == nil {
			summaries = []models.SavedExamSummary{}
		}
		c.JSON(http.StatusOK, summaries)
	}
}

// GetSavedSubject returns a saved subject with its questions and export settings.
// GET /api/v1/saved-subjects/:id
func GetSavedSubject(store SavedExamStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subject ID"})
			return
		}
		detail, err := store.GetSavedExam(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, exam.ErrSavedExamNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			log.Printf("Error retrieving saved subject %d: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve saved subject"})
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

// ListQuestions lists bank questions, newest first.
// GET /api/v1/questions?subjectId=&chapterId=
func ListQuestions(store QuestionLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID, ok := optionalIntQuery(c, "subjectId")
		if !ok {
			return
		}
		chapterID, ok := optionalIntQuery(c, "chapterId")
		if !ok {
			return
		}
		questions, err := store.ListQuestions(c.Request.Context(), subjectID, chapterID)
		if err != nil {
			log.Printf("Error listing questions: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve questions"})
			return
		}
		if questions == nil {
			questions = []models.Question{}
		}
		c.JSON(http.StatusOK, questions)
	}
}

// QuestionsForOral returns the whole pool for the selected subjects, for oral exam draws.
// POST /api/v1/questions/for-oral
func QuestionsForOral(source exam.QuestionSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.PoolRequest
		if err := c.ShouldBindJSON(&req); err != nil || len(req.SubjectIDs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Provide a non-empty list of subject IDs"})
			return
		}
		questions, err := source.QuestionsForSubjects(c.Request.Context(), req.SubjectIDs, req.ChapterIDs)
		if err != nil {
			log.Printf("Error loading oral pool for subjects %v: %v", req.SubjectIDs, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve questions"})
			return
		}
		if questions == nil {
			questions = []models.Question{}
		}
		c.JSON(http.StatusOK, questions)
	}
}

// optionalIntQuery reads a positive integer query parameter; absent means 0.
// It writes the 400 response itself and reports false on bad input.
func optionalIntQuery(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid %s", name)})
		return 0, false
	}
	return v, true
}
