package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/pavelanni/pushups/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned for unknown question sets.
var ErrNotFound = errors.New("store: not found")

// GuestID is the user id of anonymous reads. No progress rows ever carry it.
const GuestID int64 = 0

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS question_sets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '',
		is_deleted BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		set_id INTEGER NOT NULL,
		question_text TEXT NOT NULL,
		answer_text TEXT NOT NULL,
		FOREIGN KEY (set_id) REFERENCES question_sets(id)
	);

	CREATE TABLE IF NOT EXISTS set_instructions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		set_id INTEGER NOT NULL,
		instruction_text TEXT NOT NULL,
		display_order INTEGER NOT NULL,
		FOREIGN KEY (set_id) REFERENCES question_sets(id)
	);

	CREATE TABLE IF NOT EXISTS user_progress (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		attempted BOOLEAN NOT NULL DEFAULT 0,
		correct BOOLEAN,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_attempted DATETIME,
		UNIQUE (user_id, question_id)
	);

	CREATE TABLE IF NOT EXISTS missed_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		added_at DATETIME NOT NULL,
		exported BOOLEAN NOT NULL DEFAULT 0,
		UNIQUE (user_id, question_id)
	);

	CREATE TABLE IF NOT EXISTS bookmarks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (user_id, question_id)
	);

	CREATE TABLE IF NOT EXISTS set_opens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		set_id INTEGER NOT NULL,
		opened_at DATETIME NOT NULL,
		UNIQUE (user_id, set_id)
	);

	CREATE TABLE IF NOT EXISTS daily_activity (
		user_id INTEGER NOT NULL,
		activity_date TEXT NOT NULL,
		questions_practiced INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, activity_date)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		name TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSet stores a question set with its questions and instructions.
func (s *Store) CreateSet(imp model.SetImport) (model.SetID, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO question_sets (name, description, tags, created_at) VALUES (?, ?, ?, ?)`,
		imp.Name, imp.Description, imp.Tags, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, q := range imp.Questions {
		if _, err := tx.Exec(
			`INSERT INTO questions (set_id, question_text, answer_text) VALUES (?, ?, ?)`,
			id, q.Question, q.Answer,
		); err != nil {
			return 0, err
		}
	}
	for i, text := range imp.Instructions {
		if _, err := tx.Exec(
			`INSERT INTO set_instructions (set_id, instruction_text, display_order) VALUES (?, ?, ?)`,
			id, text, i,
		); err != nil {
			return 0, err
		}
	}

	return model.SetID(id), tx.Commit()
}

const setColumns = `
	SELECT qs.id, qs.name, qs.description, qs.tags, qs.created_at,
	       (SELECT COUNT(*) FROM questions q WHERE q.set_id = qs.id),
	       (SELECT COUNT(*) FROM user_progress up JOIN questions q ON q.id = up.question_id
	         WHERE q.set_id = qs.id AND up.user_id = ? AND up.attempted = 1),
	       so.opened_at
	FROM question_sets qs
	LEFT JOIN set_opens so ON so.set_id = qs.id AND so.user_id = ?
	WHERE qs.is_deleted = 0`

func scanSet(sc interface{ Scan(...any) error }) (model.QuestionSet, error) {
	var qs model.QuestionSet
	var opened sql.NullTime
	err := sc.Scan(&qs.ID, &qs.Name, &qs.Description, &qs.Tags, &qs.CreatedAt,
		&qs.QuestionCount, &qs.QuestionsAttempted, &opened)
	if err != nil {
		return qs, err
	}
	if opened.Valid {
		t := opened.Time
		qs.LastOpened = &t
		qs.DirectlyOpened = true
	}
	return qs, nil
}

// ListSets returns all sets, newest first, with the progress of userID.
func (s *Store) ListSets(userID int64) ([]model.QuestionSet, error) {
	rows, err := s.db.Query(setColumns+` ORDER BY qs.created_at DESC, qs.id DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sets := []model.QuestionSet{}
	for rows.Next() {
		qs, err := scanSet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, qs)
	}
	return sets, rows.Err()
}

// GetSet returns one set with the progress of userID.
func (s *Store) GetSet(userID int64, id model.SetID) (model.QuestionSet, error) {
	qs, err := scanSet(s.db.QueryRow(setColumns+` AND qs.id = ?`, userID, userID, id))
	if err == sql.ErrNoRows {
		return qs, ErrNotFound
	}
	return qs, err
}

// RenameSet changes the name of a set.
func (s *Store) RenameSet(id model.SetID, name string) error {
	res, err := s.db.Exec(`UPDATE question_sets SET name = ? WHERE id = ? AND is_deleted = 0`, name, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteSet hides a set from listings and random pools. Progress rows are
// kept.
func (s *Store) DeleteSet(id model.SetID) error {
	res, err := s.db.Exec(`UPDATE question_sets SET is_deleted = 1 WHERE id = ? AND is_deleted = 0`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const questionColumns = `
	SELECT q.id, q.set_id, qs.name, q.question_text, q.answer_text,
	       COALESCE(up.attempted, 0), up.correct, COALESCE(up.attempt_count, 0),
	       mq.id IS NOT NULL, b.id IS NOT NULL
	FROM questions q
	JOIN question_sets qs ON qs.id = q.set_id
	LEFT JOIN user_progress up ON up.question_id = q.id AND up.user_id = ?
	LEFT JOIN missed_questions mq ON mq.question_id = q.id AND mq.user_id = ?
	LEFT JOIN bookmarks b ON b.question_id = q.id AND b.user_id = ?`

func scanQuestions(rows *sql.Rows) ([]model.Question, error) {
	defer rows.Close()
	questions := []model.Question{}
	for rows.Next() {
		var q model.Question
		var correct sql.NullBool
		if err := rows.Scan(&q.ID, &q.SetID, &q.SetName, &q.QuestionText, &q.AnswerText,
			&q.Attempted, &correct, &q.AttemptCount, &q.IsMissed, &q.IsBookmarked); err != nil {
			return nil, err
		}
		if correct.Valid {
			c := correct.Bool
			q.Correct = &c
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// LoadQuestions returns the questions and instructions of a set, annotated
// with the progress of userID.
func (s *Store) LoadQuestions(userID int64, setID model.SetID) (model.QuestionList, error) {
	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM question_sets WHERE id = ? AND is_deleted = 0`, setID).Scan(&exists)
	if err != nil {
		return model.QuestionList{}, err
	}
	if exists == 0 {
		return model.QuestionList{}, ErrNotFound
	}

	rows, err := s.db.Query(questionColumns+` WHERE q.set_id = ? ORDER BY q.id`,
		userID, userID, userID, setID)
	if err != nil {
		return model.QuestionList{}, err
	}
	questions, err := scanQuestions(rows)
	if err != nil {
		return model.QuestionList{}, err
	}

	instructions, err := s.instructions(setID)
	if err != nil {
		return model.QuestionList{}, err
	}
	return model.QuestionList{Questions: questions, Instructions: instructions}, nil
}

func (s *Store) instructions(setID model.SetID) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT instruction_text FROM set_instructions WHERE set_id = ? ORDER BY display_order`, setID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, rows.Err()
}

// MixedQuestions returns a random pool across all sets. Unknown filters
// behave like model.FilterAll. limit <= 0 means no limit.
func (s *Store) MixedQuestions(userID int64, filter model.Filter, limit int) (model.MixedList, error) {
	query := questionColumns + ` WHERE qs.is_deleted = 0`
	switch filter {
	case model.FilterUnattempted:
		query += ` AND (up.id IS NULL OR up.attempted = 0)`
	case model.FilterMissed:
		query += ` AND mq.id IS NOT NULL`
	case model.FilterBookmarks:
		query += ` AND b.id IS NOT NULL`
	}
	query += ` ORDER BY RANDOM()`
	args := []any{userID, userID, userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return model.MixedList{}, err
	}
	questions, err := scanQuestions(rows)
	if err != nil {
		return model.MixedList{}, err
	}
	return model.MixedList{Questions: questions, FilterType: filter, Total: len(questions)}, nil
}

// MarkSetOpened records that userID opened a set.
func (s *Store) MarkSetOpened(userID int64, setID model.SetID) error {
	_, err := s.db.Exec(
		`INSERT INTO set_opens (user_id, set_id, opened_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, set_id) DO UPDATE SET opened_at = excluded.opened_at`,
		userID, setID, time.Now(),
	)
	return err
}

// UpdateProgress upserts the progress of a question and counts the attempt
// towards today's activity.
func (s *Store) UpdateProgress(userID int64, id model.QuestionID, attempted bool, correct *bool, now time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var c any
	if correct != nil {
		c = *correct
	}
	if _, err := tx.Exec(
		`INSERT INTO user_progress (user_id, question_id, attempted, correct, attempt_count, last_attempted)
		 VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT(user_id, question_id) DO UPDATE SET
		   attempted = excluded.attempted,
		   correct = excluded.correct,
		   attempt_count = user_progress.attempt_count + 1,
		   last_attempted = excluded.last_attempted`,
		userID, id, attempted, c, now,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(
		`INSERT INTO daily_activity (user_id, activity_date, questions_practiced) VALUES (?, ?, 1)
		 ON CONFLICT(user_id, activity_date) DO UPDATE SET questions_practiced = questions_practiced + 1`,
		userID, now.Format(time.DateOnly),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkMissed flags a question for later review. Marking an already missed
// question keeps its original date and makes it exportable again.
func (s *Store) MarkMissed(userID int64, id model.QuestionID) error {
	_, err := s.db.Exec(
		`INSERT INTO missed_questions (user_id, question_id, added_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, question_id) DO UPDATE SET exported = 0`,
		userID, id, time.Now(),
	)
	return err
}

// UnmarkMissed clears the missed flag of a question.
func (s *Store) UnmarkMissed(userID int64, id model.QuestionID) error {
	_, err := s.db.Exec(`DELETE FROM missed_questions WHERE user_id = ? AND question_id = ?`, userID, id)
	return err
}

// ToggleBookmark flips the bookmark of a question and returns the new state.
func (s *Store) ToggleBookmark(userID int64, id model.QuestionID) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM bookmarks WHERE user_id = ? AND question_id = ?`, userID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	bookmarked := n == 0
	if bookmarked {
		if _, err := tx.Exec(
			`INSERT INTO bookmarks (user_id, question_id, created_at) VALUES (?, ?, ?)`,
			userID, id, time.Now(),
		); err != nil {
			return false, err
		}
	}
	return bookmarked, tx.Commit()
}

// MissedQuestions returns the questions userID has flagged as missed and
// not exported yet, most recent first.
func (s *Store) MissedQuestions(userID int64) ([]model.Question, error) {
	rows, err := s.db.Query(questionColumns+` WHERE qs.is_deleted = 0 AND mq.id IS NOT NULL AND mq.exported = 0 ORDER BY mq.added_at DESC, q.id`,
		userID, userID, userID)
	if err != nil {
		return nil, err
	}
	return scanQuestions(rows)
}

// Stats returns the lifetime statistics of userID. today anchors the streak.
func (s *Store) Stats(userID int64, today time.Time) (model.UserStats, error) {
	var st model.UserStats
	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM questions q JOIN question_sets qs ON qs.id = q.set_id WHERE qs.is_deleted = 0),
			(SELECT COUNT(*) FROM user_progress WHERE user_id = ? AND attempted = 1),
			(SELECT COUNT(*) FROM user_progress WHERE user_id = ? AND correct = 1),
			(SELECT COUNT(*) FROM missed_questions WHERE user_id = ?),
			(SELECT COUNT(*) FROM bookmarks WHERE user_id = ?)`,
		userID, userID, userID, userID,
	).Scan(&st.TotalQuestions, &st.Attempted, &st.Correct, &st.Missed, &st.Bookmarks)
	if err != nil {
		return st, err
	}
	if st.Attempted > 0 {
		st.Accuracy = math.Round(float64(st.Correct)/float64(st.Attempted)*1000) / 10
	}

	rows, err := s.db.Query(
		`SELECT activity_date FROM daily_activity WHERE user_id = ? ORDER BY activity_date DESC`, userID,
	)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return st, err
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return st, err
	}
	st.Streak = streak(dates, today)
	return st, nil
}

// streak counts consecutive practice days ending today or yesterday.
// dates are YYYY-MM-DD, newest first.
func streak(dates []string, today time.Time) int {
	if len(dates) == 0 {
		return 0
	}
	day := func(offset int) string {
		return today.AddDate(0, 0, -offset).Format(time.DateOnly)
	}
	var start int
	switch dates[0] {
	case day(0):
		start = 0
	case day(1):
		start = 1
	default:
		return 0
	}
	n := 0
	for i, d := range dates {
		if d != day(start+i) {
			break
		}
		n++
	}
	return n
}
