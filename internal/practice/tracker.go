package practice

import "github.com/pavelanni/pushups/internal/model"

// Outcome is the self-graded result of one card.
type Outcome int

const (
	Skip Outcome = iota
	Correct
	Wrong
)

func (o Outcome) String() string {
	switch o {
	case Correct:
		return "correct"
	case Wrong:
		return "wrong"
	default:
		return "skip"
	}
}

// Answer is the last recorded grade of a question in the current session.
type Answer int

const (
	AnswerCorrect Answer = iota + 1
	AnswerWrong
)

func (a Answer) String() string {
	if a == AnswerCorrect {
		return "correct"
	}
	return "wrong"
}

// Stats are the session counters. Correct+Wrong always equals the number of
// graded questions.
type Stats struct {
	Correct int `json:"correct"`
	Wrong   int `json:"wrong"`
}

// tracker holds the per-session answer state. Counters are only ever
// adjusted by undoing the previous grade and applying the new one.
type tracker struct {
	answers map[model.QuestionID]Answer
	missed  map[model.QuestionID]struct{}
	stats   Stats
}

// newTracker starts with every question in the missed set.
func newTracker(questions []model.Question) *tracker {
	t := &tracker{
		answers: make(map[model.QuestionID]Answer, len(questions)),
		missed:  make(map[model.QuestionID]struct{}, len(questions)),
	}
	for _, q := range questions {
		t.missed[q.ID] = struct{}{}
	}
	return t
}

func (t *tracker) record(id model.QuestionID, o Outcome) {
	switch o {
	case Correct:
		delete(t.missed, id)
	case Wrong:
		t.missed[id] = struct{}{}
	default:
		// A skip keeps the last grade. The correct and missed sets stay
		// disjoint, so a correctly answered card is never added here.
		if !t.correct(id) {
			t.missed[id] = struct{}{}
		}
		return
	}

	if prev, ok := t.answers[id]; ok {
		t.bump(prev, -1)
	}
	a := AnswerWrong
	if o == Correct {
		a = AnswerCorrect
	}
	t.bump(a, 1)
	t.answers[id] = a
}

func (t *tracker) bump(a Answer, delta int) {
	if a == AnswerCorrect {
		t.stats.Correct += delta
	} else {
		t.stats.Wrong += delta
	}
}

func (t *tracker) correct(id model.QuestionID) bool {
	return t.answers[id] == AnswerCorrect
}

// notCorrect returns the questions whose last grade is not correct, in order.
func (t *tracker) notCorrect(questions []model.Question) []model.Question {
	var out []model.Question
	for _, q := range questions {
		if !t.correct(q.ID) {
			out = append(out, q)
		}
	}
	return out
}

func (t *tracker) missedCount(questions []model.Question) int {
	n := 0
	for _, q := range questions {
		if !t.correct(q.ID) {
			n++
		}
	}
	return n
}
