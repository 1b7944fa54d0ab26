package practice

import (
	"context"

	"github.com/pavelanni/pushups/internal/model"
)

// Backend is the data and progress service a session talks to.
// The HTTP client in internal/client is the production implementation.
type Backend interface {
	LoadQuestions(ctx context.Context, setID model.SetID) (model.QuestionList, error)
	LoadMixedQuestions(ctx context.Context, filter model.Filter) (model.MixedList, error)

	ReportOpened(ctx context.Context, setID model.SetID) error
	ReportProgress(ctx context.Context, id model.QuestionID, attempted bool, correct *bool) error
	MarkMissed(ctx context.Context, id model.QuestionID) error
	UnmarkMissed(ctx context.Context, id model.QuestionID) error
	ToggleBookmark(ctx context.Context, id model.QuestionID) error
}

// PositionStore is a string key-value store. A missing key reads as "".
// *store.Store satisfies it.
type PositionStore interface {
	GetMetadata(key string) (string, error)
	SetMetadata(key, value string) error
	DeleteMetadata(key string) error
}

// Notifier receives user-facing messages.
type Notifier func(message string, isError bool)
