package model

import "time"

// SessionSummary is the JSON structure written when a practice session ends.
type SessionSummary struct {
	RunID      string           `json:"run_id"`
	SetID      SetID            `json:"set_id"`
	SetName    string           `json:"set_name"`
	Mode       string           `json:"mode"`
	Total      int              `json:"total"`
	Correct    int              `json:"correct"`
	Wrong      int              `json:"wrong"`
	Missed     []MissedQuestion `json:"missed"`
	FinishedAt time.Time        `json:"finished_at"`
}

// MissedQuestion is a question not answered correctly in a session.
type MissedQuestion struct {
	ID           QuestionID `json:"id"`
	QuestionText string     `json:"question_text"`
	AnswerText   string     `json:"answer_text"`
	Answer       string     `json:"answer,omitempty"` // "wrong" or empty when skipped/unseen
}

// DeckExport is the JSON written by the export command: the missed
// questions of one user, ready to import into a spaced-repetition deck.
type DeckExport struct {
	Username   string     `json:"username"`
	ExportedAt time.Time  `json:"exported_at"`
	Cards      []DeckCard `json:"cards"`
	Stats      UserStats  `json:"stats"`
}

// DeckCard is one exported card.
type DeckCard struct {
	Front   string `json:"front"`
	Back    string `json:"back"`
	SetName string `json:"set_name"`
}
