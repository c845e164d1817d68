package exam

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"qbank-server/models"
	"qbank-server/utils"
)

// PgStore is the PostgreSQL-backed question store and exam persistence.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore wraps an initialized pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const questionColumns = `
	q.id, q.subject_id, q.chapter_id, q.statement, q.question_type, q.answers, q.points::text, q.image_url, q.created_at,
	s.name AS subject_name, c.name AS chapter_name`

// QuestionsForSubjects fetches the generation pool for the given subjects, optionally narrowed by chapters.
func (s *PgStore) QuestionsForSubjects(ctx context.Context, subjectIDs, chapterIDs []int) ([]models.Question, error) {
	query, args := buildQuestionQuery(subjectIDs, chapterIDs, "q.id")
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions for subjects %v: %w", subjectIDs, err)
	}
	return scanQuestions(rows)
}

// ListQuestions returns the questions of the bank, newest first. Zero IDs disable the filter.
func (s *PgStore) ListQuestions(ctx context.Context, subjectID, chapterID int) ([]models.Question, error) {
	var subjectIDs, chapterIDs []int
	if subjectID > 0 {
		subjectIDs = []int{subjectID}
	}
	if chapterID > 0 {
		chapterIDs = []int{chapterID}
	}
	query, args := buildQuestionQuery(subjectIDs, chapterIDs, "q.created_at DESC, q.id DESC")
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return scanQuestions(rows)
}

func buildQuestionQuery(subjectIDs, chapterIDs []int, orderBy string) (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT")
	sb.WriteString(questionColumns)
	sb.WriteString(`
	FROM questions q
	JOIN subjects s ON q.subject_id = s.id
	LEFT JOIN chapters c ON q.chapter_id = c.id
	WHERE 1=1`)
	var args []any
	if len(subjectIDs) > 0 {
		args = append(args, subjectIDs)
		fmt.Fprintf(&sb, " AND q.subject_id = ANY($%d)", len(args))
	}
	if len(chapterIDs) > 0 {
		args = append(args, chapterIDs)
		fmt.Fprintf(&sb, " AND q.chapter_id = ANY($%d)", len(args))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(orderBy)
	return sb.String(), args
}

func scanQuestions(rows pgx.Rows) ([]models.Question, error) {
	defer rows.Close()
	questions := make([]models.Question, 0)
	for rows.Next() {
		var (
			q          models.Question
			answersRaw []byte
			pointsRaw  string
			createdAt  *time.Time
		)
		if err := rows.Scan(
			&q.ID, &q.SubjectID, &q.ChapterID, &q.Statement, &q.QuestionType, &answersRaw, &pointsRaw, &q.ImageURL, &createdAt,
			&q.SubjectName, &q.ChapterName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}
		points, err := utils.ParsePoints(pointsRaw)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", q.ID, err)
		}
		q.Points = points
		q.Answers = DecodeAnswers(answersRaw)
		if createdAt != nil {
			q.CreatedAt = *createdAt
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read question rows: %w", err)
	}
	return questions, nil
}

// DecodeAnswers reads the stored answer list. Older rows store a plain list of
// strings, which are all correct answers; anything unreadable yields no answers.
func DecodeAnswers(raw []byte) []models.Answer {
	answers := make([]models.Answer, 0)
	if len(raw) == 0 {
		return answers
	}
	if err := json.Unmarshal(raw, &answers); err == nil {
		if answers == nil {
			return make([]models.Answer, 0)
		}
		return answers
	}
	var texts []string
	if err := json.Unmarshal(raw, &texts); err != nil {
		return make([]models.Answer, 0)
	}
	answers = make([]models.Answer, 0, len(texts))
	for _, text := range texts {
		answers = append(answers, models.Answer{Text: strings.TrimSpace(text), IsCorrect: true})
	}
	return answers
}
