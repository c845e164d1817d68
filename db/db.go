package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"qbank-server/models"
)

// InitDB initializes the PostgreSQL database connection pool
func InitDB(connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Ping the database to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to PostgreSQL database!")
	return pool, nil
}

// CreateSchema sets up the question bank tables.
// Migrations proper are handled outside this service.
func CreateSchema(pool *pgxpool.Pool) error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS subjects (
		id SERIAL PRIMARY KEY,
		code VARCHAR(50) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chapters (
		id SERIAL PRIMARY KEY,
		subject_id INT NOT NULL,
		name VARCHAR(255) NOT NULL,
		FOREIGN KEY (subject_id) REFERENCES subjects(id) ON DELETE CASCADE,
		UNIQUE (subject_id, name) -- Chapter names are unique per subject
	);

	CREATE TABLE IF NOT EXISTS promotions (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		start_year INT NOT NULL,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS questions (
		id SERIAL PRIMARY KEY,
		subject_id INT NOT NULL,
		chapter_id INT,
		statement TEXT NOT NULL,
		question_type VARCHAR(50) NOT NULL DEFAULT 'open',
		answers JSONB NOT NULL DEFAULT '[]',
		points NUMERIC(6,2) NOT NULL CHECK (points >= 0),
		image_url TEXT,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (subject_id) REFERENCES subjects(id) ON DELETE CASCADE,
		FOREIGN KEY (chapter_id) REFERENCES chapters(id) ON DELETE SET NULL,
		UNIQUE (subject_id, statement)
	);

	-- Exam templates have no parent; generated subjects point to their template
	CREATE TABLE IF NOT EXISTS exams (
		id SERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		description TEXT,
		exam_type VARCHAR(50) NOT NULL,
		promotion_id INT,
		parent_exam_id INT,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (promotion_id) REFERENCES promotions(id) ON DELETE SET NULL,
		FOREIGN KEY (parent_exam_id) REFERENCES exams(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS exam_subjects (
		id SERIAL PRIMARY KEY,
		exam_id INT NOT NULL,
		subject_id INT NOT NULL,
		coefficient NUMERIC(5,2) NOT NULL DEFAULT 1,
		duration INT, -- Minutes
		FOREIGN KEY (exam_id) REFERENCES exams(id) ON DELETE CASCADE,
		FOREIGN KEY (subject_id) REFERENCES subjects(id) ON DELETE CASCADE,
		UNIQUE (exam_id, subject_id)
	);

	CREATE TABLE IF NOT EXISTS exam_questions (
		id SERIAL PRIMARY KEY,
		exam_id INT NOT NULL,
		question_id INT NOT NULL,
		question_order INT NOT NULL,
		FOREIGN KEY (exam_id) REFERENCES exams(id) ON DELETE CASCADE,
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE,
		UNIQUE (exam_id, question_id), -- A question appears only once in a subject
		UNIQUE (exam_id, question_order)
	);

	CREATE TABLE IF NOT EXISTS error_logs (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		source TEXT NOT NULL, -- e.g., "ingestion", "generation"
		subject_code VARCHAR(50),
		file_path TEXT,
		line_number INT,
		field_name TEXT,
		error_message TEXT NOT NULL,
		suggested_fix TEXT
	);

	CREATE TABLE IF NOT EXISTS admin_events (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		action VARCHAR(255),
		actor VARCHAR(255), -- User email or 'system'
		target TEXT,        -- e.g., subject_code, exam id
		notes TEXT
	);

	CREATE TABLE IF NOT EXISTS settings (
		key VARCHAR(255) PRIMARY KEY,
		value TEXT NOT NULL,
		description TEXT,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		updated_by VARCHAR(255)
	);
	`
	_, err := pool.Exec(context.Background(), schemaSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	// Insert default settings if not already present
	defaultSettings := map[string]string{
		"max_versions_per_request": "50",
	}

	for key, value := range defaultSettings {
		_, err := pool.Exec(context.Background(), `
			INSERT INTO settings (key, value, description)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO NOTHING;
		`, key, value, fmt.Sprintf("Default setting for %s", key))
		if err != nil {
			log.Printf("Warning: Failed to insert default setting %s: %v", key, err)
		}
	}

	return nil
}

// LogError adds an entry to the error_logs table
func LogError(pool *pgxpool.Pool, source, subjectCode, filePath string, lineNumber int, fieldName, errMsg, fixSug string) {
	_, err := pool.Exec(context.Background(), `
		INSERT INTO error_logs (source, subject_code, file_path, line_number, field_name, error_message, suggested_fix)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, source, subjectCode, filePath, lineNumber, fieldName, errMsg, fixSug)
	if err != nil {
		log.Printf("ERROR: Failed to log error to database: %v. Original error: %s", err, errMsg)
	}
}

// LogAdminEvent adds an entry to the admin_events table
func LogAdminEvent(pool *pgxpool.Pool, actor, action, target, notes string) {
	_, err := pool.Exec(context.Background(), `
		INSERT INTO admin_events (action, actor, target, notes)
		VALUES ($1, $2, $3, $4)
	`, action, actor, target, notes)
	if err != nil {
		log.Printf("ERROR: Failed to log admin event to database: %v. Event: %s by %s on %s", err, action, actor, target)
	}
}

// GetSetting fetches a setting value from the settings table
func GetSetting(pool *pgxpool.Pool, key string) (string, error) {
	var value string
	err := pool.QueryRow(context.Background(), "SELECT value FROM settings WHERE key = $1", key).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("setting %s not found: %w", key, err)
	}
	return value, nil
}

// RecentAdminEvents returns the latest admin events, newest first.
func RecentAdminEvents(pool *pgxpool.Pool, limit int) ([]models.AdminEvent, error) {
	rows, err := pool.Query(context.Background(), `
		SELECT id, timestamp, action, actor, target, COALESCE(notes, '')
		FROM admin_events ORDER BY timestamp DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query admin events: %w", err)
	}
	defer rows.Close()

	var events []models.AdminEvent
	for rows.Next() {
		var ae models.AdminEvent
		if err := rows.Scan(&ae.ID, &ae.Timestamp, &ae.Action, &ae.Actor, &ae.Target, &ae.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan admin event: %w", err)
		}
		events = append(events, ae)
	}
	return events, rows.Err()
}

// RecentErrors returns the latest error log entries, newest first.
func RecentErrors(pool *pgxpool.Pool, limit int) ([]models.ErrorLog, error) {
	rows, err := pool.Query(context.Background(), `
		SELECT id, timestamp, source, COALESCE(subject_code, ''), file_path, line_number, field_name, error_message, suggested_fix
		FROM error_logs ORDER BY timestamp DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query error logs: %w", err)
	}
	defer rows.Close()

	var logs []models.ErrorLog
	for rows.Next() {
		var el models.ErrorLog
		if err := rows.Scan(&el.ID, &el.Timestamp, &el.Source, &el.SubjectCode, &el.FilePath, &el.LineNumber, &el.FieldName, &el.ErrorMessage, &el.SuggestedFix); err != nil {
			return nil, fmt.Errorf("failed to scan error log: %w", err)
		}
		logs = append(logs, el)
	}
	return logs, rows.Err()
}

// CountRows returns the number of rows of the bank tables shown on the dashboard.
func CountRows(pool *pgxpool.Pool) (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range []string{"subjects", "chapters", "questions"} {
		var n int
		if err := pool.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	var saved int
	if err := pool.QueryRow(context.Background(), "SELECT COUNT(*) FROM exams WHERE parent_exam_id IS NOT NULL").Scan(&saved); err != nil {
		return nil, fmt.Errorf("failed to count saved subjects: %w", err)
	}
	counts["saved_subjects"] = saved
	return counts, nil
}
