package console

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/pushups/internal/i18n"
	"github.com/pavelanni/pushups/internal/model"
	"github.com/pavelanni/pushups/internal/practice"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// stubBackend serves fixed lists and accepts every write.
type stubBackend struct {
	list  model.QuestionList
	calls []string
}

func (b *stubBackend) LoadQuestions(context.Context, model.SetID) (model.QuestionList, error) {
	return b.list, nil
}

func (b *stubBackend) LoadMixedQuestions(_ context.Context, f model.Filter) (model.MixedList, error) {
	return model.MixedList{Questions: b.list.Questions, FilterType: f, Total: len(b.list.Questions)}, nil
}

func (b *stubBackend) ReportOpened(context.Context, model.SetID) error { return nil }

func (b *stubBackend) ReportProgress(_ context.Context, id model.QuestionID, _ bool, _ *bool) error {
	b.calls = append(b.calls, fmt.Sprintf("progress %d", id))
	return nil
}

func (b *stubBackend) MarkMissed(context.Context, model.QuestionID) error   { return nil }
func (b *stubBackend) UnmarkMissed(context.Context, model.QuestionID) error { return nil }

func (b *stubBackend) ToggleBookmark(_ context.Context, id model.QuestionID) error {
	b.calls = append(b.calls, fmt.Sprintf("bookmark %d", id))
	return nil
}

var clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, input string, user *model.User, opts Options) (*Console, *practice.Session, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	opts.In = strings.NewReader(input)
	opts.Out = &out
	opts.Now = func() time.Time { return clock }
	c := New(opts)

	backend := &stubBackend{list: model.QuestionList{
		Questions: []model.Question{
			{ID: 1, QuestionText: "2+2?", AnswerText: "4"},
			{ID: 2, QuestionText: "3+3?", AnswerText: "6"},
		},
		Instructions: []string{"Say it loud"},
	}}
	sess := practice.New(practice.Config{
		Backend: backend,
		User:    user,
		Notify:  c.Notify,
		Now:     func() time.Time { return clock },
	})
	if err := sess.Start(context.Background(), model.QuestionSet{ID: 7, Name: "Math"}, false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return c, sess, &out
}

func TestRunFlipAndGrade(t *testing.T) {
	c, sess, out := setup(t, "f\ny\nn\nq\n", nil, Options{})
	if err := c.Run(context.Background(), sess); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Math  Question 1 / 2",
		"Q: 2+2?",
		"A: 4",
		"Question 2 / 2",
		"Session complete!",
		"Correct: 1  Wrong: 1  Not correct: 1",
		"  - 3+3? (6)",
		"[r] review misses",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "[u] next unplayed set") {
		t.Error("next-set prompt should only show for random picks")
	}
}

func TestRunReviewMisses(t *testing.T) {
	c, sess, out := setup(t, "s\ny\nr\nq\n", nil, Options{})
	if err := c.Run(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "! Reviewing 1 missed question") {
		t.Errorf("missing review notice:\n%s", out.String())
	}
	snap := sess.Snapshot()
	if !snap.Reviewing || len(snap.Questions) != 1 || snap.Questions[0].ID != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRunCommands(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"instructions", "i\nq\n", "  Say it loud"},
		{"unknown", "zz\nq\n", "Unknown command: zz"},
		{"guest bookmark", "b\nq\n", "! Sign in to bookmark questions"},
		{"previous after skip", "\np\nq\n", "Question 1 / 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sess, out := setup(t, tt.input, nil, Options{})
			if err := c.Run(context.Background(), sess); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out.String())
			}
		})
	}
}

func TestRunBookmarkSignedIn(t *testing.T) {
	c, sess, out := setup(t, "b\nq\n", &model.User{ID: 1, Username: "alice"}, Options{})
	if err := c.Run(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	if q, _ := sess.Snapshot().Current(); !q.IsBookmarked {
		t.Error("card should be bookmarked")
	}
	if !strings.Contains(out.String(), "Question 1 / 2  *") {
		t.Errorf("bookmark marker missing:\n%s", out.String())
	}
}

func TestRunEndOfInput(t *testing.T) {
	c, sess, _ := setup(t, "y\n", nil, Options{})
	if err := c.Run(context.Background(), sess); err != nil {
		t.Errorf("Run at EOF: %v", err)
	}
}

func TestRunIdleSession(t *testing.T) {
	c := New(Options{In: strings.NewReader(""), Out: &bytes.Buffer{}})
	sess := practice.New(practice.Config{Backend: &stubBackend{}})
	if err := c.Run(context.Background(), sess); !errors.Is(err, practice.ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}

func TestRunWritesSummaryOnce(t *testing.T) {
	var summary bytes.Buffer
	c, sess, _ := setup(t, "y\nn\nzz\nq\n", nil, Options{Summary: &summary})
	if err := c.Run(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	dec := json.NewDecoder(&summary)
	var got model.SessionSummary
	if err := dec.Decode(&got); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if got.SetID != 7 || got.Correct != 1 || got.Wrong != 1 || got.Mode != "single" {
		t.Errorf("summary = %+v", got)
	}
	if len(got.Missed) != 1 || got.Missed[0].Answer != "wrong" {
		t.Errorf("missed = %+v", got.Missed)
	}
	if !got.FinishedAt.Equal(clock) {
		t.Errorf("finished_at = %v", got.FinishedAt)
	}
	if dec.More() {
		t.Error("summary written more than once for one run")
	}
}

func TestRunNextSet(t *testing.T) {
	calls := 0
	next := func(ctx context.Context, sess *practice.Session) (bool, error) {
		calls++
		return false, nil
	}
	c, sess, out := setup(t, "", nil, Options{NextSet: next})
	// Restart as a random pick so the command is offered.
	if err := sess.Start(context.Background(), model.QuestionSet{ID: 7, Name: "Math"}, true); err != nil {
		t.Fatal(err)
	}
	c.in = bufioScanner("y\ny\nu\nq\n")
	if err := c.Run(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("NextSet called %d times, want 1", calls)
	}
	for _, want := range []string{"[u] next unplayed set", "You've tried all unplayed sets in this session!"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func bufioScanner(input string) *bufio.Scanner {
	return bufio.NewScanner(strings.NewReader(input))
}
