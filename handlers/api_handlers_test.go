package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbank-server/exam"
	"qbank-server/models"
	"qbank-server/utils"
)

type fixedSource struct {
	questions []models.Question
	err       error
}

func (s *fixedSource) QuestionsForSubjects(_ context.Context, subjectIDs, _ []int) ([]models.Question, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Question
	for _, q := range s.questions {
		if slices.Contains(subjectIDs, q.SubjectID) {
			out = append(out, q)
		}
	}
	return out, nil
}

// blockingFinder waits for the request deadline.
type blockingFinder struct{}

func (blockingFinder) FindCombination(ctx context.Context, _ []models.Question, _ float64, _ map[int]bool) []models.Question {
	<-ctx.Done()
	return nil
}

type fakeStore struct {
	saveErr   error
	savedIDs  []int
	lastSave  [][]int
	filter    models.SavedExamFilter
	summaries []models.SavedExamSummary
	detail    *models.SavedExamDetail
	questions []models.Question
	listArgs  [2]int
}

func (f *fakeStore) SaveGeneratedExams(_ context.Context, _ int, versions [][]int, _ map[int]models.SubjectDetails) ([]int, error) {
	f.lastSave = versions
	return f.savedIDs, f.saveErr
}

func (f *fakeStore) ListSavedExams(_ context.Context, filter models.SavedExamFilter) ([]models.SavedExamSummary, error) {
	f.filter = filter
	return f.summaries, nil
}

func (f *fakeStore) GetSavedExam(_ context.Context, id int) (models.SavedExamDetail, error) {
	if f.detail == nil || f.detail.ID != id {
		return models.SavedExamDetail{}, exam.ErrSavedExamNotFound
	}
	return *f.detail, nil
}

func (f *fakeStore) ListQuestions(_ context.Context, subjectID, chapterID int) ([]models.Question, error) {
	f.listArgs = [2]int{subjectID, chapterID}
	return f.questions, nil
}

func bank() []models.Question {
	return []models.Question{
		{ID: 1, SubjectID: 1, Points: 2},
		{ID: 2, SubjectID: 1, Points: 2},
		{ID: 3, SubjectID: 1, Points: 1},
		{ID: 4, SubjectID: 1, Points: 3},
		{ID: 5, SubjectID: 2, Points: 5},
	}
}

func perform(h gin.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set("user_email", "entry@example.com")
	h(c)
	return w
}

func maxOf(n int) func() int { return func() int { return n } }

func TestGenerateExamVersions(t *testing.T) {
	h := GenerateExamVersions(exam.NewGenerator(&fixedSource{questions: bank()}, 1), time.Second, maxOf(10))
	w := perform(h, http.MethodPost, "/api/v1/generate-exam-versions",
		`{"subjectIds":[1],"pointsPerSubject":{"1":4},"numVersions":1,"seed":7}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "complete", resp.Status)
	assert.Equal(t, int64(7), resp.Seed)
	assert.Equal(t, 1, resp.Requested)
	assert.Equal(t, 1, resp.Generated)
	assert.Equal(t, "1 of 1 generated.", resp.Message)
	require.Len(t, resp.Versions, 1)
	assert.InDelta(t, 4.0, exam.PointsOf(resp.Versions[0]), exam.Epsilon)
	assert.NotEmpty(t, resp.GenerationID)
}

func TestGenerateExamVersionsDerivesSeed(t *testing.T) {
	h := GenerateExamVersions(exam.NewGenerator(&fixedSource{questions: bank()}, 1), time.Second, maxOf(10))
	w := perform(h, http.MethodPost, "/", `{"subjectIds":[1],"pointsPerSubject":{"1":4}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, utils.SeedFromString(resp.GenerationID), resp.Seed)
	assert.Equal(t, 1, resp.Requested)
}

func TestGenerateExamVersionsErrors(t *testing.T) {
	cases := map[string]struct {
		source *fixedSource
		body   string
		want   int
	}{
		"bad json":        {&fixedSource{questions: bank()}, `{"subjectIds":`, http.StatusBadRequest},
		"zero versions":   {&fixedSource{questions: bank()}, `{"subjectIds":[1],"pointsPerSubject":{"1":4},"numVersions":0}`, http.StatusBadRequest},
		"too many":        {&fixedSource{questions: bank()}, `{"subjectIds":[1],"pointsPerSubject":{"1":4},"numVersions":11}`, http.StatusBadRequest},
		"no target":       {&fixedSource{questions: bank()}, `{"subjectIds":[1],"pointsPerSubject":{"1":0}}`, http.StatusBadRequest},
		"tiny target":     {&fixedSource{questions: bank()}, `{"subjectIds":[1],"pointsPerSubject":{"1":0.0005}}`, http.StatusBadRequest},
		"unsatisfiable":   {&fixedSource{questions: bank()}, `{"subjectIds":[1],"pointsPerSubject":{"1":20}}`, http.StatusBadRequest},
		"empty pool":      {&fixedSource{questions: bank()}, `{"subjectIds":[9],"pointsPerSubject":{"9":4}}`, http.StatusNotFound},
		"database failed": {&fixedSource{err: errors.New("connection refused")}, `{"subjectIds":[1],"pointsPerSubject":{"1":4}}`, http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := GenerateExamVersions(exam.NewGenerator(tc.source, 1), time.Second, maxOf(10))
			w := perform(h, http.MethodPost, "/", tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestGenerateExamVersionsUnsatisfiableNamesSubject(t *testing.T) {
	h := GenerateExamVersions(exam.NewGenerator(&fixedSource{questions: bank()}, 1), time.Second, maxOf(10))
	w := perform(h, http.MethodPost, "/", `{"subjectIds":[1,2],"pointsPerSubject":{"1":4,"2":4}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["subject_id"])
	assert.Contains(t, body["error"], "not enough questions, or point values do not add up")
}

func TestGenerateExamVersionsTimeout(t *testing.T) {
	gen := exam.NewGenerator(&fixedSource{questions: bank()}, 1)
	gen.NewFinder = func(int64) exam.CombinationFinder { return blockingFinder{} }
	h := GenerateExamVersions(gen, 20*time.Millisecond, maxOf(10))

	w := perform(h, http.MethodPost, "/", `{"subjectIds":[1],"pointsPerSubject":{"1":4}}`)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestSaveGeneratedExams(t *testing.T) {
	store := &fakeStore{savedIDs: []int{41, 42}}
	var events []string
	logEvent := func(actor, action, target, notes string) {
		events = append(events, actor+" "+action+" "+target+" "+notes)
	}

	w := perform(SaveGeneratedExams(store, logEvent), http.MethodPost, "/",
		`{"parentExamId":3,"versions":[[1,2],[3,4]],"exportConfig":{"1":{"coefficient":2,"duration":90}}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"message":"2 subject(s) created for exam 3","ids":[41,42]}`, w.Body.String())
	assert.Equal(t, [][]int{{1, 2}, {3, 4}}, store.lastSave)
	assert.Equal(t, []string{"entry@example.com save_generated_exams 3 Saved 2 subject(s): 41,42"}, events)
}

func TestSaveGeneratedExamsRejects(t *testing.T) {
	noop := func(_, _, _, _ string) {}
	cases := map[string]struct {
		store *fakeStore
		body  string
		want  int
	}{
		"no versions":    {&fakeStore{}, `{"parentExamId":3,"versions":[],"exportConfig":{}}`, http.StatusBadRequest},
		"empty version":  {&fakeStore{}, `{"parentExamId":3,"versions":[[]],"exportConfig":{}}`, http.StatusBadRequest},
		"repeated id":    {&fakeStore{}, `{"parentExamId":3,"versions":[[1,1]],"exportConfig":{}}`, http.StatusBadRequest},
		"missing parent": {&fakeStore{}, `{"versions":[[1]],"exportConfig":{}}`, http.StatusBadRequest},
		"unknown parent": {&fakeStore{saveErr: exam.ErrParentExamNotFound}, `{"parentExamId":3,"versions":[[1]],"exportConfig":{}}`, http.StatusNotFound},
		"store failure":  {&fakeStore{saveErr: errors.New("tx aborted")}, `{"parentExamId":3,"versions":[[1]],"exportConfig":{}}`, http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := perform(SaveGeneratedExams(tc.store, noop), http.MethodPost, "/", tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestListSavedSubjects(t *testing.T) {
	store := &fakeStore{}
	w := perform(ListSavedSubjects(store), http.MethodGet, "/?promotionId=2&parentExamId=5&examType=final", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.Equal(t, models.SavedExamFilter{PromotionID: 2, ParentExamID: 5, ExamType: "final"}, store.filter)

	w = perform(ListSavedSubjects(store), http.MethodGet, "/?promotionId=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSavedSubject(t *testing.T) {
	store := &fakeStore{detail: &models.SavedExamDetail{ID: 8, Title: "Finals - Subject 1"}}

	c := func(id string) *httptest.ResponseRecorder {
		gin.SetMode(gin.TestMode)
		w := httptest.NewRecorder()
		ctx, _ := gin.CreateTestContext(w)
		ctx.Request = httptest.NewRequest(http.MethodGet, "/api/v1/saved-subjects/"+id, nil)
		ctx.Params = gin.Params{{Key: "id", Value: id}}
		GetSavedSubject(store)(ctx)
		return w
	}

	w := c("8")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Finals - Subject 1")
	assert.Equal(t, http.StatusNotFound, c("9").Code)
	assert.Equal(t, http.StatusBadRequest, c("x").Code)
}

func TestListQuestions(t *testing.T) {
	store := &fakeStore{questions: bank()[:2]}
	w := perform(ListQuestions(store), http.MethodGet, "/?subjectId=1&chapterId=4", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, [2]int{1, 4}, store.listArgs)

	var questions []models.Question
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &questions))
	assert.Len(t, questions, 2)

	w = perform(ListQuestions(store), http.MethodGet, "/?chapterId=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuestionsForOral(t *testing.T) {
	h := QuestionsForOral(&fixedSource{questions: bank()})

	w := perform(h, http.MethodPost, "/", `{"subjectIds":[2]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var questions []models.Question
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &questions))
	require.Len(t, questions, 1)
	assert.Equal(t, 5, questions[0].ID)

	w = perform(h, http.MethodPost, "/", `{"subjectIds":[9]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = perform(h, http.MethodPost, "/", `{"subjectIds":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
