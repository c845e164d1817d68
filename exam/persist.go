package exam

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"

	"qbank-server/models"
)

// SaveGeneratedExams stores each version as a subject of the parent exam template,
// with its questions in order and the export settings of every subject it covers.
// It returns the IDs of the created subjects. Everything happens in one transaction.
func (s *PgStore) SaveGeneratedExams(ctx context.Context, parentExamID int, versions [][]int, exportConfig map[int]models.SubjectDetails) ([]int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // Rollback on error

	parent, err := loadParentExam(ctx, tx, parentExamID)
	if err != nil {
		return nil, err
	}

	savedIDs := make([]int, 0, len(versions))
	for i, questionIDs := range versions {
		title := fmt.Sprintf("%s - Subject %d", parent.Title, i+1)

		var examID int
		err = tx.QueryRow(ctx, `
			INSERT INTO exams (title, exam_type, promotion_id, parent_exam_id)
			VALUES ($1, $2, $3, $4) RETURNING id
		`, title, parent.ExamType, parent.PromotionID, parent.ID).Scan(&examID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert subject %q: %w", title, err)
		}

		rows := make([][]any, len(questionIDs))
		for order, questionID := range questionIDs {
			rows[order] = []any{examID, questionID, order + 1} // question_order starts from 1
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"exam_questions"},
			[]string{"exam_id", "question_id", "question_order"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return nil, fmt.Errorf("failed to link questions to subject %q: %w", title, err)
		}

		// Export settings only for the subjects this version actually covers
		subjectRows, err := tx.Query(ctx, `SELECT DISTINCT subject_id FROM questions WHERE id = ANY($1)`, questionIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve subjects of %q: %w", title, err)
		}
		subjectIDs, err := pgx.CollectRows(subjectRows, pgx.RowTo[int])
		if err != nil {
			return nil, fmt.Errorf("failed to scan subjects of %q: %w", title, err)
		}
		for _, subjectID := range subjectIDs {
			details, ok := exportConfig[subjectID]
			if !ok {
				log.Printf("No export settings for subject %d in %q, skipping", subjectID, title)
				continue
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO exam_subjects (exam_id, subject_id, coefficient, duration)
				VALUES ($1, $2, $3, $4)
			`, examID, subjectID, details.Coefficient, details.Duration); err != nil {
				return nil, fmt.Errorf("failed to store settings of subject %d for %q: %w", subjectID, title, err)
			}
		}
		savedIDs = append(savedIDs, examID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit generated subjects: %w", err)
	}
	return savedIDs, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// loadParentExam reads the exam template new subjects are saved under.
// Its promotion may be NULL and is copied through as is.
func loadParentExam(ctx context.Context, q rowQuerier, parentExamID int) (models.Exam, error) {
	var parent models.Exam
	err := q.QueryRow(ctx, `
		SELECT id, title, exam_type, promotion_id FROM exams WHERE id = $1 AND parent_exam_id IS NULL
	`, parentExamID).Scan(&parent.ID, &parent.Title, &parent.ExamType, &parent.PromotionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return parent, ErrParentExamNotFound
	}
	if err != nil {
		return parent, fmt.Errorf("failed to load parent exam %d: %w", parentExamID, err)
	}
	return parent, nil
}

// ListSavedExams lists generated subjects, newest first.
func (s *PgStore) ListSavedExams(ctx context.Context, filter models.SavedExamFilter) ([]models.SavedExamSummary, error) {
	query, args := buildSavedExamsQuery(filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query saved subjects: %w", err)
	}
	defer rows.Close()

	saved := make([]models.SavedExamSummary, 0)
	for rows.Next() {
		var e models.SavedExamSummary
		if err := rows.Scan(&e.ID, &e.Title, &e.CreatedAt, &e.ExamType, &e.PromotionName, &e.ParentTitle); err != nil {
			return nil, fmt.Errorf("failed to scan saved subject row: %w", err)
		}
		saved = append(saved, e)
	}
	return saved, rows.Err()
}

// GetSavedExam loads one generated subject with its questions (ordered by subject
// name, then question ID) and its per-subject export settings.
func (s *PgStore) GetSavedExam(ctx context.Context, id int) (models.SavedExamDetail, error) {
	var detail models.SavedExamDetail
	err := s.pool.QueryRow(ctx, `
		SELECT s.id, s.title, s.created_at, parent.title, parent.exam_type
		FROM exams s
		JOIN exams parent ON s.parent_exam_id = parent.id
		WHERE s.id = $1
	`, id).Scan(&detail.ID, &detail.Title, &detail.CreatedAt, &detail.ParentTitle, &detail.ExamType)
	if errors.Is(err, pgx.ErrNoRows) {
		return detail, ErrSavedExamNotFound
	}
	if err != nil {
		return detail, fmt.Errorf("failed to load saved subject %d: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `SELECT`+questionColumns+`
		FROM exam_questions eq
		JOIN questions q ON eq.question_id = q.id
		JOIN subjects s ON q.subject_id = s.id
		LEFT JOIN chapters c ON q.chapter_id = c.id
		WHERE eq.exam_id = $1
		ORDER BY s.name, q.id
	`, id)
	if err != nil {
		return detail, fmt.Errorf("failed to query questions of saved subject %d: %w", id, err)
	}
	if detail.Questions, err = scanQuestions(rows); err != nil {
		return detail, err
	}

	settingRows, err := s.pool.Query(ctx, `
		SELECT subject_id, coefficient::float8, duration FROM exam_subjects WHERE exam_id = $1
	`, id)
	if err != nil {
		return detail, fmt.Errorf("failed to query settings of saved subject %d: %w", id, err)
	}
	defer settingRows.Close()
	detail.SubjectDetails = make(map[int]models.SubjectDetails)
	for settingRows.Next() {
		var subjectID int
		var d models.SubjectDetails
		if err := settingRows.Scan(&subjectID, &d.Coefficient, &d.Duration); err != nil {
			return detail, fmt.Errorf("failed to scan subject settings: %w", err)
		}
		detail.SubjectDetails[subjectID] = d
	}
	return detail, settingRows.Err()
}

func buildSavedExamsQuery(filter models.SavedExamFilter) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT s.id, s.title, s.created_at, parent.exam_type, COALESCE(p.name, ''), parent.title
		FROM exams s
		LEFT JOIN promotions p ON s.promotion_id = p.id
		JOIN exams parent ON s.parent_exam_id = parent.id
		WHERE s.parent_exam_id IS NOT NULL`)
	var args []any
	if filter.PromotionID > 0 {
		args = append(args, filter.PromotionID)
		fmt.Fprintf(&sb, " AND s.promotion_id = $%d", len(args))
	}
	if filter.ParentExamID > 0 {
		args = append(args, filter.ParentExamID)
		fmt.Fprintf(&sb, " AND s.parent_exam_id = $%d", len(args))
	}
	if filter.ExamType != "" {
		args = append(args, filter.ExamType)
		fmt.Fprintf(&sb, " AND parent.exam_type = $%d", len(args))
	}
	sb.WriteString(" ORDER BY s.created_at DESC")
	return sb.String(), args
}
