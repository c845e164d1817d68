package ingestion

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"qbank-server/db"
	"qbank-server/models"
	"qbank-server/utils"
)

const (
	sourceName = "ingestion"
	answerSep  = "|"
	correctTag = "*"

	// questions.points is NUMERIC(6,2)
	pointDecimals = 2
	maxPoints     = 10000.0
)

var csvHeaders = []string{"chapter", "question_type", "statement", "points", "answers"}

// RowError describes the first invalid line of a questions.csv file.
type RowError struct {
	Line    int
	Field   string
	Message string
	Fix     string
}

func (e *RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("line %d, %s: %s", e.Line, e.Field, e.Message)
}

// ListSubjectCodes returns the subject directories found under banksPath/subjects.
func ListSubjectCodes(banksPath string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(banksPath, "subjects"))
	if err != nil {
		return nil, fmt.Errorf("failed to list subject banks in %s: %w", banksPath, err)
	}
	var codes []string
	for _, entry := range entries {
		if entry.IsDir() {
			codes = append(codes, entry.Name())
		}
	}
	sort.Strings(codes)
	return codes, nil
}

// ParseSubjectYAML reads subject metadata and checks it belongs to the expected directory.
func ParseSubjectYAML(data []byte, subjectCode string) (models.SubjectYAML, error) {
	var meta models.SubjectYAML
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to unmarshal subject.yaml: %w", err)
	}
	if meta.Code != subjectCode {
		return meta, fmt.Errorf("code in subject.yaml (%s) must match directory name (%s)", meta.Code, subjectCode)
	}
	if strings.TrimSpace(meta.Name) == "" {
		return meta, fmt.Errorf("subject.yaml for %s has no name", subjectCode)
	}
	return meta, nil
}

// ParseQuestionsCSV validates a questions.csv stream. Chapters must be declared
// in subject.yaml; an empty chapter leaves the question outside any chapter.
func ParseQuestionsCSV(r io.Reader, chapters []string) ([]models.BankQuestion, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Column count is checked per row for better messages
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, &RowError{Line: 1, Message: "no question rows", Fix: "A header row and at least one question row are required."}
	}
	for i, header := range csvHeaders {
		if len(rows[0]) != len(csvHeaders) || strings.TrimSpace(strings.ToLower(rows[0][i])) != header {
			return nil, &RowError{Line: 1, Message: "unexpected header", Fix: "Header must be: " + strings.Join(csvHeaders, ",")}
		}
	}

	declared := make(map[string]bool, len(chapters))
	for _, chapter := range chapters {
		declared[chapter] = true
	}
	statements := make(map[string]bool)

	var questions []models.BankQuestion
	for i, row := range rows[1:] {
		lineNum := i + 2 // CSV line number, after the header
		if len(row) != len(csvHeaders) {
			return nil, &RowError{Line: lineNum, Message: fmt.Sprintf("expected %d columns, got %d", len(csvHeaders), len(row))}
		}
		q := models.BankQuestion{
			Line:         lineNum,
			Chapter:      strings.TrimSpace(row[0]),
			QuestionType: strings.ToLower(strings.TrimSpace(row[1])),
			Statement:    strings.TrimSpace(row[2]),
		}
		if q.QuestionType == "" {
			q.QuestionType = "open"
		}

		if q.Statement == "" {
			return nil, &RowError{Line: lineNum, Field: "statement", Message: "missing statement"}
		}
		if statements[q.Statement] {
			return nil, &RowError{Line: lineNum, Field: "statement", Message: "duplicate statement", Fix: "Statements must be unique within a subject."}
		}
		statements[q.Statement] = true

		if q.Chapter != "" && !declared[q.Chapter] {
			return nil, &RowError{Line: lineNum, Field: "chapter", Message: fmt.Sprintf("chapter %q is not declared", q.Chapter), Fix: "Add it to the chapters list of subject.yaml."}
		}

		points, err := utils.ParsePoints(row[3])
		if err != nil {
			return nil, &RowError{Line: lineNum, Field: "points", Message: err.Error(), Fix: "Use a non-negative decimal such as 1.5."}
		}
		if !utils.HasAtMostDecimals(points, pointDecimals) || points >= maxPoints {
			return nil, &RowError{Line: lineNum, Field: "points", Message: fmt.Sprintf("point value %q cannot be stored exactly", row[3]),
				Fix: fmt.Sprintf("Use at most %d decimal places and a value below %g.", pointDecimals, maxPoints)}
		}
		q.Points = points

		answers, rowErr := parseAnswers(q.QuestionType, row[4])
		if rowErr != nil {
			rowErr.Line = lineNum
			return nil, rowErr
		}
		q.Answers = answers
		questions = append(questions, q)
	}
	return questions, nil
}

func parseAnswers(questionType, raw string) ([]models.Answer, *RowError) {
	var answers []models.Answer
	hasCorrect := false
	for _, part := range strings.Split(raw, answerSep) {
		text := strings.TrimSpace(part)
		if text == "" {
			continue
		}
		answer := models.Answer{Text: text}
		if strings.HasPrefix(text, correctTag) {
			answer.Text = strings.TrimSpace(strings.TrimPrefix(text, correctTag))
			answer.IsCorrect = true
		}
		answers = append(answers, answer)
		hasCorrect = hasCorrect || answer.IsCorrect
	}

	switch questionType {
	case "open":
		// Expected answers of open questions are all correct
		for i := range answers {
			answers[i].IsCorrect = true
		}
	case "single", "multi", "truefalse":
		if len(answers) == 0 {
			return nil, &RowError{Field: "answers", Message: "no choices provided", Fix: "Separate choices with '|'."}
		}
		if !hasCorrect {
			return nil, &RowError{Field: "answers", Message: "no correct choice marked", Fix: "Prefix correct choices with '*'."}
		}
	default:
		return nil, &RowError{Field: "question_type", Message: fmt.Sprintf("unknown question type %q", questionType), Fix: "Must be 'open', 'single', 'multi' or 'truefalse'."}
	}
	if answers == nil {
		answers = []models.Answer{}
	}
	return answers, nil
}

// ProcessSubjectBank reads subject.yaml and questions.csv for one subject, validates
// them and upserts the subject, its chapters and its questions. Questions that left
// the file are removed unless a saved subject still uses them.
// It returns the number of questions imported.
func ProcessSubjectBank(ctx context.Context, pool *pgxpool.Pool, subjectCode, banksPath string) (int, error) {
	subjectPath := filepath.Join(banksPath, "subjects", subjectCode)
	subjectYAMLPath := filepath.Join(subjectPath, "subject.yaml")
	questionsCSVPath := filepath.Join(subjectPath, "questions.csv")

	// 1. Read subject.yaml
	subjectYAMLData, err := os.ReadFile(subjectYAMLPath)
	if err != nil {
		db.LogError(pool, sourceName, subjectCode, subjectYAMLPath, 0, "", "Failed to read subject.yaml", fmt.Sprintf("Ensure file exists and is readable: %v", err))
		return 0, fmt.Errorf("failed to read subject.yaml for %s: %w", subjectCode, err)
	}
	meta, err := ParseSubjectYAML(subjectYAMLData, subjectCode)
	if err != nil {
		db.LogError(pool, sourceName, subjectCode, subjectYAMLPath, 0, "", "Invalid subject.yaml", err.Error())
		return 0, fmt.Errorf("invalid subject.yaml for %s: %w", subjectCode, err)
	}

	// 2. Read and validate questions.csv
	csvFile, err := os.Open(questionsCSVPath)
	if err != nil {
		db.LogError(pool, sourceName, subjectCode, questionsCSVPath, 0, "", "Failed to open questions.csv", fmt.Sprintf("Ensure file exists and is readable: %v", err))
		return 0, fmt.Errorf("failed to open questions.csv for %s: %w", subjectCode, err)
	}
	defer csvFile.Close()

	questions, err := ParseQuestionsCSV(csvFile, meta.Chapters)
	if err != nil {
		var rowErr *RowError
		if errors.As(err, &rowErr) {
			db.LogError(pool, sourceName, subjectCode, questionsCSVPath, rowErr.Line, rowErr.Field, rowErr.Message, rowErr.Fix)
		} else {
			db.LogError(pool, sourceName, subjectCode, questionsCSVPath, 0, "", "Failed to read questions.csv", err.Error())
		}
		return 0, fmt.Errorf("invalid questions.csv for %s: %w", subjectCode, err)
	}

	// 3. Persist in one transaction
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // Rollback on error

	var subjectID int
	err = tx.QueryRow(ctx, `
		INSERT INTO subjects (code, name) VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, meta.Code, meta.Name).Scan(&subjectID)
	if err != nil {
		db.LogError(pool, sourceName, subjectCode, "", 0, "", "Failed to upsert subject", fmt.Sprintf("Database error: %v", err))
		return 0, fmt.Errorf("failed to upsert subject %s: %w", subjectCode, err)
	}

	chapterIDs := make(map[string]int, len(meta.Chapters))
	for _, chapter := range meta.Chapters {
		var id int
		err := tx.QueryRow(ctx, `
			INSERT INTO chapters (subject_id, name) VALUES ($1, $2)
			ON CONFLICT (subject_id, name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, subjectID, chapter).Scan(&id)
		if err != nil {
			db.LogError(pool, sourceName, subjectCode, subjectYAMLPath, 0, "chapters", "Failed to upsert chapter", fmt.Sprintf("Database error: %v", err))
			return 0, fmt.Errorf("failed to upsert chapter %s for %s: %w", chapter, subjectCode, err)
		}
		chapterIDs[chapter] = id
	}

	statements := make([]string, 0, len(questions))
	for _, q := range questions {
		var chapterID *int
		if id, ok := chapterIDs[q.Chapter]; ok {
			chapterID = &id
		}
		answersJSON, err := json.Marshal(q.Answers)
		if err != nil {
			return 0, fmt.Errorf("failed to encode answers at line %d: %w", q.Line, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO questions (subject_id, chapter_id, statement, question_type, answers, points)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (subject_id, statement) DO UPDATE SET
				chapter_id = EXCLUDED.chapter_id,
				question_type = EXCLUDED.question_type,
				answers = EXCLUDED.answers,
				points = EXCLUDED.points
		`, subjectID, chapterID, q.Statement, q.QuestionType, answersJSON, q.Points)
		if err != nil {
			db.LogError(pool, sourceName, subjectCode, questionsCSVPath, q.Line, "", "Failed to upsert question", fmt.Sprintf("Database error: %v", err))
			return 0, fmt.Errorf("failed to upsert question at line %d for %s: %w", q.Line, subjectCode, err)
		}
		statements = append(statements, q.Statement)
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM questions
		WHERE subject_id = $1 AND NOT (statement = ANY($2))
		AND id NOT IN (SELECT question_id FROM exam_questions)
	`, subjectID, statements)
	if err != nil {
		return 0, fmt.Errorf("failed to remove retired questions for %s: %w", subjectCode, err)
	}

	if err := tx.Commit(ctx); err != nil {
		db.LogError(pool, sourceName, subjectCode, "", 0, "", "Failed to commit ingestion transaction", fmt.Sprintf("Database error: %v", err))
		return 0, fmt.Errorf("failed to commit ingestion transaction for %s: %w", subjectCode, err)
	}

	log.Printf("Imported %d questions for subject %s (%d retired)", len(questions), subjectCode, tag.RowsAffected())
	return len(questions), nil
}
