package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/pushups/internal/model"
)

// ExportMissed builds a deck of the user's unexported missed questions.
// With markExported the exported questions are hidden from future exports
// until they are missed again.
func (s *Store) ExportMissed(username string, markExported bool) (model.DeckExport, error) {
	u, err := s.GetUserByUsername(username)
	if err != nil {
		return model.DeckExport{}, fmt.Errorf("get user %s: %w", username, err)
	}
	if u == nil {
		return model.DeckExport{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}

	now := time.Now()
	missed, err := s.MissedQuestions(u.ID)
	if err != nil {
		return model.DeckExport{}, fmt.Errorf("list missed questions: %w", err)
	}
	stats, err := s.Stats(u.ID, now)
	if err != nil {
		return model.DeckExport{}, fmt.Errorf("stats: %w", err)
	}

	deck := model.DeckExport{
		Username:   u.Username,
		ExportedAt: now,
		Cards:      make([]model.DeckCard, 0, len(missed)),
		Stats:      stats,
	}
	for _, q := range missed {
		deck.Cards = append(deck.Cards, model.DeckCard{
			Front:   q.QuestionText,
			Back:    q.AnswerText,
			SetName: q.SetName,
		})
	}

	if markExported && len(missed) > 0 {
		tx, err := s.db.Begin()
		if err != nil {
			return model.DeckExport{}, err
		}
		defer tx.Rollback()
		for _, q := range missed {
			if _, err := tx.Exec(
				`UPDATE missed_questions SET exported = 1 WHERE user_id = ? AND question_id = ?`,
				u.ID, q.ID,
			); err != nil {
				return model.DeckExport{}, fmt.Errorf("mark question %d exported: %w", q.ID, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return model.DeckExport{}, err
		}
	}
	return deck, nil
}
