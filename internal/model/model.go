package model

import (
	"context"
	"time"
)

// SetID identifies a question set.
type SetID int64

// MixedSetID is the identity of the synthetic set behind a random-mode session.
// It has no stable meaning across sessions.
const MixedSetID SetID = -1

// QuestionID identifies a question. It is unique within a loaded question list.
type QuestionID int64

// Filter selects the pool of a random-mode session.
type Filter string

const (
	FilterAll         Filter = "all"
	FilterUnattempted Filter = "unattempted"
	FilterMissed      Filter = "missed"
	FilterBookmarks   Filter = "bookmarks"
)

// Question is a single flashcard.
type Question struct {
	ID           QuestionID `json:"id"`
	SetID        SetID      `json:"set_id"`
	SetName      string     `json:"set_name,omitempty"`
	QuestionText string     `json:"question_text"`
	AnswerText   string     `json:"answer_text"`
	IsBookmarked bool       `json:"is_bookmarked"`
	IsMissed     bool       `json:"is_missed"`
	Attempted    bool       `json:"attempted"`
	Correct      *bool      `json:"correct"`
	AttemptCount int        `json:"attempt_count"`
}

// QuestionSet is a named collection of questions.
type QuestionSet struct {
	ID                 SetID      `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	Tags               string     `json:"tags,omitempty"`
	QuestionCount      int        `json:"question_count"`
	QuestionsAttempted int        `json:"questions_attempted"`
	DirectlyOpened     bool       `json:"directly_opened"`
	LastOpened         *time.Time `json:"last_opened,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// IsMixed reports whether the set is the synthetic random-mode set.
func (s QuestionSet) IsMixed() bool {
	return s.ID == MixedSetID
}

// QuestionList is what loading a single set returns.
type QuestionList struct {
	Questions    []Question `json:"questions"`
	Instructions []string   `json:"instructions"`
}

// MixedList is what loading a random-mode pool returns.
type MixedList struct {
	Questions  []Question `json:"questions"`
	FilterType Filter     `json:"filter_type"`
	Total      int        `json:"total"`
}

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an API token issued at login.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// UserStats holds lifetime statistics of one user.
type UserStats struct {
	TotalQuestions int     `json:"total_questions"`
	Attempted      int     `json:"attempted"`
	Correct        int     `json:"correct"`
	Missed         int     `json:"missed"`
	Bookmarks      int     `json:"bookmarks"`
	Accuracy       float64 `json:"accuracy"`
	Streak         int     `json:"streak"`
}

// SetImport is used for loading question sets from JSON.
type SetImport struct {
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Tags         string           `json:"tags"`
	Instructions []string         `json:"instructions"`
	Questions    []QuestionImport `json:"questions"`
}

// QuestionImport is a single card inside a SetImport.
type QuestionImport struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
