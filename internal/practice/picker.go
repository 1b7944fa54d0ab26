package practice

import (
	"math/rand/v2"
	"sync"

	"github.com/pavelanni/pushups/internal/model"
)

// Picker chooses random unplayed sets without repeating a set it already
// handed out in the current run.
type Picker struct {
	mu     sync.Mutex
	opened map[model.SetID]struct{}
	intn   func(n int) int
}

// NewPicker returns a Picker backed by math/rand.
func NewPicker() *Picker {
	return &Picker{opened: map[model.SetID]struct{}{}, intn: rand.IntN}
}

// Pick returns a random set that has no attempted questions, is not current
// and was not opened in this run. ok is false when every candidate is used up.
func (p *Picker) Pick(sets []model.QuestionSet, current model.SetID) (model.QuestionSet, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var candidates []model.QuestionSet
	for _, s := range sets {
		if s.ID == current || s.QuestionsAttempted > 0 {
			continue
		}
		if _, seen := p.opened[s.ID]; seen {
			continue
		}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return model.QuestionSet{}, false
	}
	return candidates[p.intn(len(candidates))], true
}

// Opened records that a set was started in this run.
func (p *Picker) Opened(id model.SetID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened[id] = struct{}{}
}

// Reset starts a new run.
func (p *Picker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.opened)
}
