package models

import (
	"time"
)

// Subject struct represents a top-level grading category (a course)
type Subject struct {
	ID            int    `json:"id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	QuestionCount int    `json:"question_count,omitempty"` // For API response
}

// Chapter struct represents a sub-category within a subject
type Chapter struct {
	ID        int    `json:"id"`
	SubjectID int    `json:"subject_id"`
	Name      string `json:"name"`
}

// Answer is one entry of a question's answer list
type Answer struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question struct represents a question of the bank.
// Generation only looks at ID, SubjectID and Points; the rest is display payload.
type Question struct {
	ID           int       `json:"id"`
	SubjectID    int       `json:"subject_id"`
	ChapterID    *int      `json:"chapter_id"` // Pointer to allow NULL
	Statement    string    `json:"statement"`
	QuestionType string    `json:"question_type"`
	Points       float64   `json:"points"`
	Answers      []Answer  `json:"answers"`
	ImageURL     *string   `json:"image_url"`
	CreatedAt    time.Time `json:"created_at"`
	SubjectName  string    `json:"subject_name,omitempty"` // Joined for listings
	ChapterName  *string   `json:"chapter_name,omitempty"`
}

// Exam represents either a parent exam template or a saved generated subject (ParentExamID set).
type Exam struct {
	ID           int       `json:"id"`
	Title        string    `json:"title"`
	Description  *string   `json:"description,omitempty"`
	ExamType     string    `json:"exam_type"`
	PromotionID  *int      `json:"promotion_id"` // NULL once the promotion is deleted
	ParentExamID *int      `json:"parent_exam_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SavedExamSummary is a row of the saved subjects listing
type SavedExamSummary struct {
	ID            int       `json:"id"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	ExamType      string    `json:"exam_type"`
	PromotionName string    `json:"promotion_name"` // Empty when the promotion is gone
	ParentTitle   string    `json:"parent_title"`
}

// SubjectDetails holds the export settings of one subject inside a saved exam
type SubjectDetails struct {
	Coefficient float64 `json:"coefficient"`
	Duration    int     `json:"duration"` // Minutes
}

// SavedExamDetail is everything the document exporter needs for one saved subject
type SavedExamDetail struct {
	ID             int                    `json:"id"`
	Title          string                 `json:"title"`
	CreatedAt      time.Time              `json:"created_at"`
	ParentTitle    string                 `json:"parent_title"`
	ExamType       string                 `json:"exam_type"`
	Questions      []Question             `json:"questions"`
	SubjectDetails map[int]SubjectDetails `json:"subject_details"`
}

// SavedExamFilter narrows the saved subjects listing. Zero values mean "all".
type SavedExamFilter struct {
	PromotionID  int
	ParentExamID int
	ExamType     string
}

// GenerateRequest is the JSON body of POST /api/v1/generate-exam-versions
type GenerateRequest struct {
	SubjectIDs       []int           `json:"subjectIds" binding:"required"`
	ChapterIDs       []int           `json:"chapterIds"`
	PointsPerSubject map[int]float64 `json:"pointsPerSubject" binding:"required"`
	NumVersions      *int            `json:"numVersions"`
	Seed             *int64          `json:"seed"`
}

// GenerateResponse is returned for complete and partial generations
type GenerateResponse struct {
	GenerationID string       `json:"generation_id"`
	Seed         int64        `json:"seed"`
	Status       string       `json:"status"`
	Requested    int          `json:"requested"`
	Generated    int          `json:"generated"`
	Versions     [][]Question `json:"versions"`
	Message      string       `json:"message,omitempty"`
}

// SaveGeneratedRequest is the JSON body of POST /api/v1/save-generated-exams
type SaveGeneratedRequest struct {
	ParentExamID int                    `json:"parentExamId" binding:"required"`
	Versions     [][]int                `json:"versions" binding:"required"` // Question IDs per version
	ExportConfig map[int]SubjectDetails `json:"exportConfig" binding:"required"`
}

// PoolRequest is the JSON body of POST /api/v1/questions/for-oral
type PoolRequest struct {
	SubjectIDs []int `json:"subjectIds" binding:"required"`
	ChapterIDs []int `json:"chapterIds"`
}

// ErrorLog represents an entry in the error_logs table
type ErrorLog struct {
	ID           int       `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Source       string    `json:"source"`
	SubjectCode  string    `json:"subject_code"`
	FilePath     *string   `json:"file_path"`
	LineNumber   *int      `json:"line_number"`
	FieldName    *string   `json:"field_name"`
	ErrorMessage string    `json:"error_message"`
	SuggestedFix *string   `json:"suggested_fix"`
}

// AdminEvent represents an entry in the admin_events table
type AdminEvent struct {
	ID        int       `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Target    string    `json:"target"`
	Notes     string    `json:"notes"`
}

// SubjectYAML for parsing subject.yaml
type SubjectYAML struct {
	Code     string   `yaml:"code"`
	Name     string   `yaml:"name"`
	Chapters []string `yaml:"chapters"`
}

// BankQuestion is one parsed row of questions.csv
type BankQuestion struct {
	Line         int
	Chapter      string
	QuestionType string
	Statement    string
	Points       float64
	Answers      []Answer
}
