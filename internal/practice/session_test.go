package practice

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/pavelanni/pushups/internal/model"
)

func TestStartLoadsQuestions(t *testing.T) {
	h := newHarness(t, testUser)
	h.backend.list.Instructions = []string{"Say it out loud"}
	h.start(t)

	snap := h.session.Snapshot()
	if len(snap.Questions) != 3 {
		t.Fatalf("questions = %d, want 3", len(snap.Questions))
	}
	if snap.Set.ID != testSet.ID || snap.Mode != ModeSingle {
		t.Errorf("set = %d mode = %s", snap.Set.ID, snap.Mode)
	}
	if snap.Index != 0 || snap.Flipped || snap.ShowSummary {
		t.Errorf("unexpected initial state: %+v", snap)
	}
	if snap.Stats != (Stats{}) {
		t.Errorf("stats = %+v, want zero", snap.Stats)
	}
	if !slices.Equal(snap.Instructions, []string{"Say it out loud"}) {
		t.Errorf("instructions = %v", snap.Instructions)
	}
	if snap.RunID == "" {
		t.Error("expected a run id")
	}
	if snap.MissedCount != 3 {
		t.Errorf("missed count = %d, want 3", snap.MissedCount)
	}
}

func TestStartResumesSavedPosition(t *testing.T) {
	h := newHarness(t, testUser)
	h.store.data[positionKey(testSet.ID)] = "2"
	h.start(t)

	snap := h.session.Snapshot()
	if snap.Index != 2 {
		t.Errorf("index = %d, want 2", snap.Index)
	}
	if snap.Notice != "Resuming from question 3" {
		t.Errorf("notice = %q", snap.Notice)
	}
}

func TestStartIgnoresUnusablePosition(t *testing.T) {
	for _, v := range []string{"abc", "3", "-1", ""} {
		t.Run(v, func(t *testing.T) {
			h := newHarness(t, nil)
			h.store.data[positionKey(testSet.ID)] = v
			h.start(t)

			snap := h.session.Snapshot()
			if snap.Index != 0 {
				t.Errorf("index = %d, want 0", snap.Index)
			}
			if snap.Notice != "" {
				t.Errorf("notice = %q, want none", snap.Notice)
			}
		})
	}
}

func TestStartSavesLastSet(t *testing.T) {
	for _, user := range []*model.User{nil, testUser} {
		h := newHarness(t, user)
		h.start(t)
		if got := h.store.data[lastSetKey]; got != "123" {
			t.Errorf("user %v: last set = %q, want 123", user, got)
		}
	}
}

func TestStartReportsOpenedOnlyWhenSignedIn(t *testing.T) {
	guest := newHarness(t, nil)
	guest.start(t)
	if slices.Contains(guest.backend.Calls(), "opened 123") {
		t.Error("guest start reported the set as opened")
	}

	user := newHarness(t, testUser)
	user.backend.openedErr = errors.New("boom")
	user.start(t)
	calls := user.backend.Calls()
	if len(calls) < 2 || calls[0] != "opened 123" || calls[1] != "load 123" {
		t.Errorf("calls = %v", calls)
	}
	if len(user.recorder.all()) != 0 {
		t.Error("a failed opened report should not notify")
	}
}

func TestStartLoadError(t *testing.T) {
	h := newHarness(t, testUser)
	h.start(t)
	before := h.session.Snapshot()

	h.backend.loadErr = errors.New("Network error")
	err := h.session.Start(context.Background(), model.QuestionSet{ID: 9, Name: "Other"}, false)

	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *LoadError", err)
	}
	if le.SetID != 9 {
		t.Errorf("LoadError.SetID = %d", le.SetID)
	}
	notes := h.recorder.all()
	if len(notes) != 1 || notes[0].message != "Error loading questions: Network error" || !notes[0].isError {
		t.Errorf("notifications = %+v", notes)
	}
	after := h.session.Snapshot()
	if after.RunID != before.RunID || after.Set.ID != before.Set.ID {
		t.Error("failed start changed the session")
	}
}

func TestStartEmptySet(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.list = model.QuestionList{}
	err := h.session.Start(context.Background(), testSet, false)
	if !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("err = %v, want ErrNoQuestions", err)
	}
	if h.session.Snapshot().Active() {
		t.Error("empty set started a session")
	}
}

func TestStartRejectsMixedSet(t *testing.T) {
	h := newHarness(t, nil)
	err := h.session.Start(context.Background(), model.QuestionSet{ID: model.MixedSetID}, false)
	if !errors.Is(err, ErrMixedSet) {
		t.Errorf("err = %v, want ErrMixedSet", err)
	}
}

func TestStartMixed(t *testing.T) {
	h := newHarness(t, testUser)
	h.backend.mixed = model.MixedList{Questions: testQuestions(), FilterType: model.FilterAll}

	if err := h.session.StartMixed(context.Background(), model.FilterAll); err != nil {
		t.Fatalf("StartMixed: %v", err)
	}
	snap := h.session.Snapshot()
	if snap.Mode != ModeMixed || !snap.Set.IsMixed() {
		t.Errorf("mode = %s set = %d", snap.Mode, snap.Set.ID)
	}
	if snap.Set.Name != "Random Mode (all)" {
		t.Errorf("set name = %q", snap.Set.Name)
	}

	ctx := context.Background()
	h.session.Next(ctx, Correct)
	h.session.Previous()
	h.session.Next(ctx, Correct)
	h.session.Next(ctx, Correct)
	h.session.Next(ctx, Correct)
	if len(h.store.data) != 0 {
		t.Errorf("mixed session touched the position store: %v", h.store.data)
	}
	if !h.session.Snapshot().ShowSummary {
		t.Error("expected summary after last card")
	}
}

func TestStartMixedEmptyResult(t *testing.T) {
	h := newHarness(t, testUser)
	h.start(t)
	before := h.session.Snapshot()

	err := h.session.StartMixed(context.Background(), model.FilterBookmarks)
	if !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("err = %v, want ErrNoQuestions", err)
	}
	after := h.session.Snapshot()
	if after.Set.ID != before.Set.ID || len(after.Questions) != len(before.Questions) || after.Mode != ModeSingle {
		t.Error("empty random pool changed the session")
	}
	if after.Notice != "No bookmarks questions found!" {
		t.Errorf("notice = %q", after.Notice)
	}
}

func TestStartMixedLoadError(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.mixedErr = errors.New("offline")

	err := h.session.StartMixed(context.Background(), model.FilterMissed)
	var le *LoadError
	if !errors.As(err, &le) || le.Filter != model.FilterMissed {
		t.Fatalf("err = %v", err)
	}
	notes := h.recorder.all()
	if len(notes) != 1 || notes[0].message != "Error loading randomized questions: offline" {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestNextIdempotentReanswer(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	ctx := context.Background()

	for _, o := range []Outcome{Correct, Wrong, Correct} {
		h.session.Next(ctx, o)
		h.session.Previous()
	}

	snap := h.session.Snapshot()
	if snap.Stats != (Stats{Correct: 1, Wrong: 0}) {
		t.Errorf("stats = %+v, want {1 0}", snap.Stats)
	}
	if len(snap.Answers) != 1 || snap.Answers[1] != AnswerCorrect {
		t.Errorf("answers = %v", snap.Answers)
	}
}

func TestNextKeepsPartition(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	ctx := context.Background()

	steps := []func(){
		func() { h.session.Next(ctx, Correct) },
		func() { h.session.Next(ctx, Skip) },
		func() { h.session.Previous() },
		func() { h.session.Next(ctx, Wrong) },
		func() { h.session.Previous() },
		func() { h.session.Previous() },
		func() { h.session.Next(ctx, Wrong) },
		func() { h.session.Next(ctx, Correct) },
		func() { h.session.Next(ctx, Correct) },
	}
	for i, step := range steps {
		step()
		snap := h.session.Snapshot()
		correct := 0
		for _, q := range snap.Questions {
			_, missed := snap.Missed[q.ID]
			isCorrect := snap.Answers[q.ID] == AnswerCorrect
			if missed == isCorrect {
				t.Fatalf("step %d: question %d missed=%v correct=%v", i, q.ID, missed, isCorrect)
			}
			if isCorrect {
				correct++
			}
		}
		if snap.MissedCount+correct != len(snap.Questions) {
			t.Fatalf("step %d: missed %d + correct %d != %d", i, snap.MissedCount, correct, len(snap.Questions))
		}
		if snap.Stats.Correct+snap.Stats.Wrong != len(snap.Answers) {
			t.Fatalf("step %d: stats %+v vs %d answers", i, snap.Stats, len(snap.Answers))
		}
	}
}

func TestNextSavesPosition(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.session.Next(context.Background(), Correct)

	if got := h.store.data[positionKey(testSet.ID)]; got != "1" {
		t.Errorf("saved position = %q, want 1", got)
	}
	snap := h.session.Snapshot()
	if snap.Index != 1 || snap.Flipped {
		t.Errorf("index = %d flipped = %v", snap.Index, snap.Flipped)
	}
}

func TestResumeRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	ctx := context.Background()
	h.session.Next(ctx, Correct)
	h.session.Next(ctx, Wrong)

	reloaded := New(Config{Backend: h.backend, Positions: h.store})
	if err := reloaded.Start(ctx, testSet, false); err != nil {
		t.Fatal(err)
	}
	if got := reloaded.Snapshot().Index; got != 2 {
		t.Errorf("index after reload = %d, want 2", got)
	}
}

func TestCompletionClearsPosition(t *testing.T) {
	h := newHarness(t, nil)
	var completed []Stats
	h.session = New(Config{
		Backend:    h.backend,
		Positions:  h.store,
		OnComplete: func(s Stats) { completed = append(completed, s) },
	})
	h.start(t)
	ctx := context.Background()
	h.session.Next(ctx, Correct)
	h.session.Next(ctx, Wrong)
	h.session.Next(ctx, Skip)

	if h.store.has(positionKey(testSet.ID)) {
		t.Error("position still stored after completion")
	}
	if h.store.has(lastSetKey) {
		t.Error("last set still stored after completion")
	}
	snap := h.session.Snapshot()
	if !snap.ShowSummary {
		t.Error("ShowSummary = false")
	}
	if snap.Index != 2 {
		t.Errorf("index = %d, want 2", snap.Index)
	}

	h.session.Next(ctx, Correct)
	if len(completed) != 1 {
		t.Fatalf("OnComplete called %d times, want 1", len(completed))
	}
	if completed[0] != (Stats{Correct: 1, Wrong: 1}) {
		t.Errorf("completion stats = %+v", completed[0])
	}
}

func TestNextBackendCalls(t *testing.T) {
	tests := []struct {
		name     string
		missed   bool
		outcomes []Outcome
		want     []string
	}{
		{"correct", false, []Outcome{Correct}, []string{"progress 1 true true"}},
		{"correct clears lifetime miss", true, []Outcome{Correct}, []string{"progress 1 true true", "unmark-missed 1"}},
		{"wrong", false, []Outcome{Wrong}, []string{"progress 1 true false", "mark-missed 1"}},
		{"wrong already missed", true, []Outcome{Wrong}, []string{"progress 1 true false", "mark-missed 1"}},
		{"skip", true, []Outcome{Skip}, []string{"progress 1 true nil"}},
		{"wrong then correct clears the new miss", false, []Outcome{Wrong, Correct}, []string{
			"progress 1 true false", "mark-missed 1",
			"progress 1 true true", "unmark-missed 1",
		}},
		{"correct twice unmarks once", true, []Outcome{Correct, Correct}, []string{
			"progress 1 true true", "unmark-missed 1",
			"progress 1 true true",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testUser)
			h.backend.list.Questions[0].IsMissed = tt.missed
			h.start(t)
			h.backend.calls = nil

			for i, o := range tt.outcomes {
				if i > 0 {
					h.session.Previous()
				}
				h.session.Next(context.Background(), o)
			}
			if got := h.backend.Calls(); !slices.Equal(got, tt.want) {
				t.Errorf("calls = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextKeepsMissedFlagOnFailure(t *testing.T) {
	h := newHarness(t, testUser)
	h.start(t)
	h.backend.missedErr = errors.New("server down")

	h.session.Next(context.Background(), Wrong)
	if q := h.session.Snapshot().Questions[0]; q.IsMissed {
		t.Error("missed flag set although the backend rejected it")
	}

	h.backend.missedErr = nil
	h.session.Previous()
	h.session.Next(context.Background(), Wrong)
	if q := h.session.Snapshot().Questions[0]; !q.IsMissed {
		t.Error("missed flag not recorded after the backend accepted it")
	}
}

func TestNextGuestSkipsBackend(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.backend.calls = nil

	h.session.Next(context.Background(), Wrong)
	if calls := h.backend.Calls(); len(calls) != 0 {
		t.Errorf("guest Next called backend: %v", calls)
	}
}

func TestNextSaveFailureStillAdvances(t *testing.T) {
	h := newHarness(t, testUser)
	h.start(t)
	h.backend.progressErr = errors.New("server down")

	h.session.Next(context.Background(), Wrong)

	snap := h.session.Snapshot()
	if snap.Index != 1 || snap.Stats.Wrong != 1 {
		t.Errorf("index = %d stats = %+v", snap.Index, snap.Stats)
	}
	notes := h.recorder.all()
	if len(notes) != 1 || notes[0].message != "Failed to save progress: server down" || !notes[0].isError {
		t.Errorf("notifications = %+v", notes)
	}
	if slices.Contains(h.backend.Calls(), "mark-missed 1") {
		t.Error("mark-missed called after progress failed")
	}
}

func TestNextDropsOverlappingCalls(t *testing.T) {
	h := newHarness(t, testUser)
	h.start(t)
	h.backend.entered = make(chan struct{}, 1)
	h.backend.release = make(chan struct{})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		h.session.Next(ctx, Correct)
		close(done)
	}()
	<-h.backend.entered

	if !h.session.Snapshot().Processing {
		t.Error("Processing = false while saving")
	}
	h.session.Next(ctx, Wrong)
	close(h.backend.release)
	<-done

	snap := h.session.Snapshot()
	if snap.Index != 1 {
		t.Errorf("index = %d, want 1", snap.Index)
	}
	if snap.Stats != (Stats{Correct: 1}) {
		t.Errorf("stats = %+v, want {1 0}", snap.Stats)
	}
	if snap.Processing {
		t.Error("Processing still set")
	}
}

func TestNextWithoutSession(t *testing.T) {
	h := newHarness(t, testUser)
	h.session.Next(context.Background(), Correct)
	if calls := h.backend.Calls(); len(calls) != 0 {
		t.Errorf("calls = %v", calls)
	}
}

func TestPrevious(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	ctx := context.Background()

	h.session.Previous()
	if got := h.session.Snapshot().Index; got != 0 {
		t.Fatalf("index = %d after Previous at 0", got)
	}
	if h.store.has(positionKey(testSet.ID)) {
		t.Error("Previous at 0 saved a position")
	}

	h.session.Next(ctx, Wrong)
	h.session.Flip()
	h.session.Previous()
	snap := h.session.Snapshot()
	if snap.Index != 0 || snap.Flipped {
		t.Errorf("index = %d flipped = %v", snap.Index, snap.Flipped)
	}
	if snap.Stats.Wrong != 1 || snap.Answers[1] != AnswerWrong {
		t.Errorf("Previous changed grades: %+v", snap)
	}
	if got := h.store.data[positionKey(testSet.ID)]; got != "0" {
		t.Errorf("saved position = %q, want 0", got)
	}
}

func TestFlip(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.session.Flip()
	if !h.session.Snapshot().Flipped {
		t.Fatal("Flip did not show the answer")
	}
	h.session.Flip()
	snap := h.session.Snapshot()
	if snap.Flipped {
		t.Error("second Flip did not hide the answer")
	}
	if len(snap.Answers) != 0 {
		t.Error("Flip recorded an answer")
	}
}

func TestBookmarkGuest(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.backend.calls = nil

	h.session.Bookmark(context.Background())

	if h.session.Snapshot().Questions[0].IsBookmarked {
		t.Error("guest bookmark changed the flag")
	}
	if calls := h.backend.Calls(); len(calls) != 0 {
		t.Errorf("calls = %v", calls)
	}
	notes := h.recorder.all()
	if len(notes) != 1 || !notes[0].isError || notes[0].message != "Sign in to bookmark questions" {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestBookmarkToggle(t *testing.T) {
	h := newHarness(t, testUser)
	h.start(t)
	ctx := context.Background()

	h.session.Bookmark(ctx)
	if !h.session.Snapshot().Questions[0].IsBookmarked {
		t.Fatal("bookmark not set")
	}
	if !slices.Contains(h.backend.Calls(), "bookmark 1") {
		t.Error("endpoint not called")
	}

	h.backend.bookmarkErr = errors.New("rejected")
	h.session.Bookmark(ctx)
	if !h.session.Snapshot().Questions[0].IsBookmarked {
		t.Error("failed toggle was not reverted")
	}
	if len(h.recorder.all()) != 0 {
		t.Error("bookmark failure should only be logged")
	}
}

func TestReviewMisses(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	ctx := context.Background()
	h.session.Next(ctx, Correct)
	h.session.Next(ctx, Wrong)
	before := h.session.Snapshot()

	if !h.session.ReviewMisses(ctx) {
		t.Fatal("ReviewMisses = false")
	}
	snap := h.session.Snapshot()
	var ids []model.QuestionID
	for _, q := range snap.Questions {
		ids = append(ids, q.ID)
	}
	if !slices.Equal(ids, []model.QuestionID{2, 3}) {
		t.Errorf("review questions = %v, want [2 3]", ids)
	}
	if snap.Stats != (Stats{}) || len(snap.Answers) != 0 {
		t.Errorf("review did not reset stats: %+v %v", snap.Stats, snap.Answers)
	}
	if snap.Index != 0 || snap.Flipped || snap.ShowSummary || !snap.Reviewing {
		t.Errorf("unexpected review state: %+v", snap)
	}
	if snap.RunID == before.RunID {
		t.Error("review kept the run id")
	}
	if snap.Notice != "Reviewing 2 missed questions" {
		t.Errorf("notice = %q", snap.Notice)
	}
	if snap.MissedCount != 2 {
		t.Errorf("missed count = %d, want 2", snap.MissedCount)
	}

	saved := h.store.data[positionKey(testSet.ID)]
	h.session.Next(ctx, Correct)
	if got := h.store.data[positionKey(testSet.ID)]; got != saved {
		t.Errorf("review session changed saved position from %q to %q", saved, got)
	}
}

func TestReviewMissesAllCorrect(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	ctx := context.Background()
	for range 3 {
		h.session.Next(ctx, Correct)
	}
	before := h.session.Snapshot()

	if h.session.ReviewMisses(ctx) {
		t.Fatal("ReviewMisses = true with no misses")
	}
	after := h.session.Snapshot()
	if after.RunID != before.RunID || !after.ShowSummary {
		t.Error("session was replaced")
	}
	if after.Notice != "No misses this session - nothing to review!" {
		t.Errorf("notice = %q", after.Notice)
	}
}

func TestReplay(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.session.Replay(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Replay without session = %v", err)
	}

	h.start(t)
	for range 3 {
		h.session.Next(ctx, Wrong)
	}
	if err := h.session.Replay(ctx); err != nil {
		t.Fatal(err)
	}
	snap := h.session.Snapshot()
	if snap.ShowSummary || snap.Index != 0 || len(snap.Questions) != 3 || snap.Stats != (Stats{}) {
		t.Errorf("replay state: %+v", snap)
	}
}

func TestNoticeExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	h := newHarness(t, nil)
	h.store.data[positionKey(testSet.ID)] = "1"
	h.session = New(Config{
		Backend:   h.backend,
		Positions: h.store,
		Now:       func() time.Time { return now },
		NoticeTTL: time.Second,
	})
	h.start(t)

	if h.session.Snapshot().Notice == "" {
		t.Fatal("expected resume notice")
	}
	now = now.Add(2 * time.Second)
	if got := h.session.Snapshot().Notice; got != "" {
		t.Errorf("notice after TTL = %q", got)
	}
}

func TestSetUser(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	ctx := context.Background()

	h.session.SetUser(testUser)
	h.backend.calls = nil
	h.session.Bookmark(ctx)
	if !slices.Equal(h.backend.Calls(), []string{"bookmark 1"}) {
		t.Errorf("calls = %v", h.backend.Calls())
	}
}
