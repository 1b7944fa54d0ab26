package practice

import (
	"maps"
	"time"

	"github.com/pavelanni/pushups/internal/model"
)

// Snapshot is a copy of the session state for rendering.
type Snapshot struct {
	RunID        string
	Set          model.QuestionSet
	Mode         Mode
	Filter       model.Filter
	Questions    []model.Question
	Instructions []string
	Index        int
	Flipped      bool
	Answers      map[model.QuestionID]Answer
	Missed       map[model.QuestionID]struct{}
	Stats        Stats
	MissedCount  int
	ShowSummary  bool
	Processing   bool
	Reviewing    bool
	RandomPick   bool
	// Notice is the current transient notice, empty once it expired.
	Notice string
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		RunID:        s.runID,
		Set:          s.set,
		Mode:         s.mode,
		Filter:       s.filter,
		Questions:    append([]model.Question(nil), s.questions...),
		Instructions: append([]string(nil), s.instructions...),
		Index:        s.index,
		Flipped:      s.flipped,
		Answers:      maps.Clone(s.tracker.answers),
		Missed:       maps.Clone(s.tracker.missed),
		Stats:        s.tracker.stats,
		MissedCount:  s.tracker.missedCount(s.questions),
		ShowSummary:  s.showSummary,
		Processing:   s.processingNext,
		Reviewing:    s.reviewing,
		RandomPick:   s.randomPick,
	}
	if s.notice.text != "" && s.now().Before(s.notice.expires) {
		snap.Notice = s.notice.text
	}
	return snap
}

// Active reports whether a session has been started.
func (s Snapshot) Active() bool {
	return len(s.Questions) > 0
}

// Current returns the card at Index.
func (s Snapshot) Current() (model.Question, bool) {
	if s.Index < 0 || s.Index >= len(s.Questions) {
		return model.Question{}, false
	}
	return s.Questions[s.Index], true
}

// Summary describes the session for export.
func (s Snapshot) Summary(now time.Time) model.SessionSummary {
	mode := string(s.Mode)
	if s.Reviewing {
		mode += "-review"
	}
	sum := model.SessionSummary{
		RunID:      s.RunID,
		SetID:      s.Set.ID,
		SetName:    s.Set.Name,
		Mode:       mode,
		Total:      len(s.Questions),
		Correct:    s.Stats.Correct,
		Wrong:      s.Stats.Wrong,
		Missed:     []model.MissedQuestion{},
		FinishedAt: now,
	}
	for _, q := range s.Questions {
		a, graded := s.Answers[q.ID]
		if a == AnswerCorrect {
			continue
		}
		mq := model.MissedQuestion{ID: q.ID, QuestionText: q.QuestionText, AnswerText: q.AnswerText}
		if graded {
			mq.Answer = a.String()
		}
		sum.Missed = append(sum.Missed, mq)
	}
	return sum
}
