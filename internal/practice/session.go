// Package practice implements the flashcard practice session: one card at a
// time through a question set, with self-graded outcomes, resumable
// positions and review of the cards missed in the session.
package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/pushups/internal/i18n"
	"github.com/pavelanni/pushups/internal/model"
)

// Mode tells a concrete set apart from a random-mode pool.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMixed  Mode = "mixed"
)

// DefaultNoticeTTL is how long a transient notice stays in the snapshot.
const DefaultNoticeTTL = 3 * time.Second

var (
	// ErrNoQuestions is returned when a start would produce an empty session.
	ErrNoQuestions = errors.New("practice: no questions")
	// ErrNoSession is returned by operations that need an active session.
	ErrNoSession = errors.New("practice: no active session")
	// ErrMixedSet is returned when the synthetic mixed set is passed to Start.
	ErrMixedSet = errors.New("practice: mixed set cannot be started directly")
)

// LoadError reports a failed question fetch.
type LoadError struct {
	SetID  model.SetID
	Filter model.Filter
	Err    error
}

func (e *LoadError) Error() string {
	if e.SetID == model.MixedSetID {
		return fmt.Sprintf("load %s questions: %v", e.Filter, e.Err)
	}
	return fmt.Sprintf("load questions for set %d: %v", e.SetID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Config wires a Session to its collaborators. Backend is required.
type Config struct {
	Backend   Backend
	Positions PositionStore
	// User is the signed-in identity. Nil means guest: nothing is reported
	// to the backend and bookmarking is refused.
	User       *model.User
	Notify     Notifier
	OnComplete func(Stats)
	Now        func() time.Time
	NoticeTTL  time.Duration
}

type notice struct {
	text    string
	expires time.Time
}

// Session is the practice state machine. All methods are safe to call from
// multiple goroutines; Next rejects calls that overlap an in-flight Next.
type Session struct {
	backend    Backend
	positions  *Positions
	notify     Notifier
	onComplete func(Stats)
	now        func() time.Time
	noticeTTL  time.Duration

	mu             sync.Mutex
	user           *model.User
	runID          string
	set            model.QuestionSet
	mode           Mode
	filter         model.Filter
	questions      []model.Question
	instructions   []string
	index          int
	flipped        bool
	tracker        *tracker
	showSummary    bool
	processingNext bool
	reviewing      bool
	randomPick     bool
	notice         notice
}

// New creates an idle session.
func New(cfg Config) *Session {
	s := &Session{
		backend:    cfg.Backend,
		positions:  NewPositions(cfg.Positions),
		notify:     cfg.Notify,
		onComplete: cfg.OnComplete,
		now:        cfg.Now,
		noticeTTL:  cfg.NoticeTTL,
		user:       cfg.User,
		mode:       ModeSingle,
		tracker:    newTracker(nil),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.noticeTTL <= 0 {
		s.noticeTTL = DefaultNoticeTTL
	}
	return s
}

// SetUser replaces the identity used for backend writes. Nil signs out.
func (s *Session) SetUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// Positions exposes the position adapter, e.g. to find the last started set.
func (s *Session) Positions() *Positions {
	return s.positions
}

// Start loads a set and begins a single-set session, resuming at the saved
// position when one is stored. random marks the start as part of a random
// unplayed-set sequence. On a load failure the notifier is told and nothing
// changes.
func (s *Session) Start(ctx context.Context, set model.QuestionSet, random bool) error {
	if set.IsMixed() {
		return ErrMixedSet
	}

	if s.signedIn() {
		if err := s.backend.ReportOpened(ctx, set.ID); err != nil {
			slog.Warn("report set opened", "set_id", set.ID, "error", err)
		}
	}

	list, err := s.backend.LoadQuestions(ctx, set.ID)
	if err != nil {
		slog.Error("load questions", "set_id", set.ID, "error", err)
		s.emit(i18n.Td(ctx, "LoadQuestionsFailed", map[string]any{"Error": err.Error()}), true)
		return &LoadError{SetID: set.ID, Err: err}
	}
	if len(list.Questions) == 0 {
		s.mu.Lock()
		s.setNotice(i18n.T(ctx, "EmptySet"))
		s.mu.Unlock()
		return ErrNoQuestions
	}

	s.mu.Lock()
	s.reset(set, ModeSingle, list.Questions)
	s.instructions = list.Instructions
	s.randomPick = random
	if idx, ok := s.positions.Load(set.ID); ok && idx >= 0 && idx < len(s.questions) {
		s.index = idx
		s.setNotice(i18n.Td(ctx, "ResumingFrom", map[string]any{"N": idx + 1}))
	}
	s.positions.SetLast(set.ID)
	runID, index := s.runID, s.index
	s.mu.Unlock()

	slog.Info("practice started", "run_id", runID, "set_id", set.ID,
		"questions", len(list.Questions), "index", index, "random", random)
	return nil
}

// StartMixed begins a random-mode session over the pool selected by filter.
// An empty pool leaves the current session untouched.
func (s *Session) StartMixed(ctx context.Context, filter model.Filter) error {
	list, err := s.backend.LoadMixedQuestions(ctx, filter)
	if err != nil {
		slog.Error("load mixed questions", "filter", filter, "error", err)
		s.emit(i18n.Td(ctx, "LoadMixedFailed", map[string]any{"Error": err.Error()}), true)
		return &LoadError{SetID: model.MixedSetID, Filter: filter, Err: err}
	}
	if len(list.Questions) == 0 {
		s.mu.Lock()
		s.setNotice(i18n.Td(ctx, "NoFilterQuestions", map[string]any{"Filter": string(filter)}))
		s.mu.Unlock()
		return ErrNoQuestions
	}

	set := model.QuestionSet{
		ID:            model.MixedSetID,
		Name:          i18n.Td(ctx, "RandomModeName", map[string]any{"Filter": string(filter)}),
		QuestionCount: len(list.Questions),
	}

	s.mu.Lock()
	s.reset(set, ModeMixed, list.Questions)
	s.filter = filter
	runID := s.runID
	s.mu.Unlock()

	slog.Info("random mode started", "run_id", runID, "filter", filter, "questions", len(list.Questions))
	return nil
}

// Replay starts the current source again from the beginning: the same set,
// or a fresh pool for the same filter in random mode.
func (s *Session) Replay(ctx context.Context) error {
	s.mu.Lock()
	set, mode, filter, active := s.set, s.mode, s.filter, len(s.questions) > 0
	s.mu.Unlock()

	if !active {
		return ErrNoSession
	}
	if mode == ModeMixed {
		return s.StartMixed(ctx, filter)
	}
	return s.Start(ctx, set, false)
}

// Next records the outcome of the current card and moves on. On the last
// card it ends the session and calls OnComplete. Calls that arrive while a
// previous Next is still saving are dropped.
func (s *Session) Next(ctx context.Context, o Outcome) {
	s.mu.Lock()
	if s.processingNext || len(s.questions) == 0 || s.showSummary {
		s.mu.Unlock()
		return
	}
	s.processingNext = true
	q := s.questions[s.index]
	s.tracker.record(q.ID, o)
	runID, user := s.runID, s.user
	s.mu.Unlock()

	missed := q.IsMissed
	if user != nil {
		var err error
		if missed, err = s.saveProgress(ctx, q, o); err != nil {
			slog.Error("save progress", "run_id", runID, "question_id", q.ID, "error", err)
			s.emit(i18n.Td(ctx, "SaveProgressFailed", map[string]any{"Error": err.Error()}), true)
		}
	}

	s.mu.Lock()
	if s.runID != runID {
		// A new session started while the progress was being saved.
		s.mu.Unlock()
		return
	}
	for i := range s.questions {
		if s.questions[i].ID == q.ID {
			s.questions[i].IsMissed = missed
		}
	}
	done := false
	if s.index < len(s.questions)-1 {
		s.index++
		s.flipped = false
		if s.persistsPosition() {
			s.positions.Save(s.set.ID, s.index)
		}
	} else {
		if s.persistsPosition() {
			s.positions.Clear(s.set.ID)
			s.positions.ClearLast()
		}
		s.showSummary = true
		done = true
	}
	stats := s.tracker.stats
	s.processingNext = false
	s.mu.Unlock()

	if done {
		slog.Info("practice complete", "run_id", runID, "correct", stats.Correct, "wrong", stats.Wrong)
		if s.onComplete != nil {
			s.onComplete(stats)
		}
	}
}

// saveProgress reports the outcome and keeps the lifetime missed flag in
// step with it. It returns the flag as the backend last accepted it.
func (s *Session) saveProgress(ctx context.Context, q model.Question, o Outcome) (missed bool, err error) {
	var correct *bool
	if o != Skip {
		c := o == Correct
		correct = &c
	}
	if err := s.backend.ReportProgress(ctx, q.ID, true, correct); err != nil {
		return q.IsMissed, err
	}
	switch {
	case o == Wrong:
		if err := s.backend.MarkMissed(ctx, q.ID); err != nil {
			return q.IsMissed, err
		}
		return true, nil
	case o == Correct && q.IsMissed:
		if err := s.backend.UnmarkMissed(ctx, q.ID); err != nil {
			return q.IsMissed, err
		}
		return false, nil
	}
	return q.IsMissed, nil
}

// Previous steps back one card. Grades are left alone; the next call to
// Next re-grades the card.
func (s *Session) Previous() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processingNext || s.showSummary || s.index == 0 {
		return
	}
	s.index--
	s.flipped = false
	if s.persistsPosition() {
		s.positions.Save(s.set.ID, s.index)
	}
}

// Flip turns the current card over.
func (s *Session) Flip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.questions) == 0 || s.showSummary {
		return
	}
	s.flipped = !s.flipped
}

// Bookmark toggles the bookmark of the current card. The flag flips at once
// and is reverted if the backend rejects the change. Guests get a notice.
func (s *Session) Bookmark(ctx context.Context) {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		s.emit(i18n.T(ctx, "SignInToBookmark"), true)
		return
	}
	if len(s.questions) == 0 || s.showSummary {
		s.mu.Unlock()
		return
	}
	q := &s.questions[s.index]
	prev := q.IsBookmarked
	q.IsBookmarked = !prev
	id, runID := q.ID, s.runID
	s.mu.Unlock()

	if err := s.backend.ToggleBookmark(ctx, id); err != nil {
		slog.Warn("toggle bookmark", "run_id", runID, "question_id", id, "error", err)
		s.mu.Lock()
		if s.runID == runID {
			for i := range s.questions {
				if s.questions[i].ID == id {
					s.questions[i].IsBookmarked = prev
				}
			}
		}
		s.mu.Unlock()
	}
}

// ReviewMisses replaces the session with the cards not answered correctly,
// in their original order, as a fresh session. It reports false and sets a
// notice when there is nothing to review.
func (s *Session) ReviewMisses(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.questions) == 0 {
		return false
	}
	misses := s.tracker.notCorrect(s.questions)
	if len(misses) == 0 {
		s.setNotice(i18n.T(ctx, "NoMisses"))
		return false
	}
	instructions, filter := s.instructions, s.filter
	s.reset(s.set, s.mode, misses)
	s.instructions, s.filter = instructions, filter
	s.reviewing = true
	s.setNotice(i18n.Tp(ctx, "ReviewingMisses", len(misses)))
	slog.Info("reviewing misses", "run_id", s.runID, "set_id", s.set.ID, "questions", len(misses))
	return true
}

// MissedCount is the number of cards in the session not answered correctly.
func (s *Session) MissedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.missedCount(s.questions)
}

// reset replaces all session state. Caller holds mu.
func (s *Session) reset(set model.QuestionSet, mode Mode, questions []model.Question) {
	s.runID = uuid.NewString()
	s.set = set
	s.mode = mode
	s.filter = ""
	s.questions = append([]model.Question(nil), questions...)
	s.instructions = nil
	s.index = 0
	s.flipped = false
	s.tracker = newTracker(s.questions)
	s.showSummary = false
	s.processingNext = false
	s.reviewing = false
	s.randomPick = false
	s.notice = notice{}
}

func (s *Session) persistsPosition() bool {
	return s.mode == ModeSingle && !s.reviewing
}

func (s *Session) signedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil
}

// setNotice shows text until the notice TTL passes. Caller holds mu.
func (s *Session) setNotice(text string) {
	s.notice = notice{text: text, expires: s.now().Add(s.noticeTTL)}
}

func (s *Session) emit(message string, isError bool) {
	if s.notify != nil {
		s.notify(message, isError)
	}
}
