// Package console drives a practice session from a line-oriented terminal.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/pushups/internal/i18n"
	"github.com/pavelanni/pushups/internal/practice"
)

// NextSetFunc starts another set after a finished one. ok is false when
// nothing is left to start.
type NextSetFunc func(ctx context.Context, sess *practice.Session) (ok bool, err error)

// Options configures a Console.
type Options struct {
	In  io.Reader
	Out io.Writer
	// Summary receives the JSON session summary each time a run completes.
	Summary io.Writer
	// NextSet enables the "next unplayed set" command on the summary screen
	// of randomly picked sets.
	NextSet NextSetFunc
	Now     func() time.Time
}

// Console reads commands and renders the session as text.
type Console struct {
	in      *bufio.Scanner
	summary io.Writer
	nextSet NextSetFunc
	now     func() time.Time

	mu  sync.Mutex
	out io.Writer

	lastNotice  string
	lastSummary string
}

// New creates a console.
func New(opts Options) *Console {
	c := &Console{
		in:      bufio.NewScanner(opts.In),
		out:     opts.Out,
		summary: opts.Summary,
		nextSet: opts.NextSet,
		now:     opts.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Notify prints a session notification. Pass it as practice.Config.Notify.
func (c *Console) Notify(message string, _ bool) {
	c.println("! " + message)
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

// Run loops until the user quits or the input ends. The session must have
// been started.
func (c *Console) Run(ctx context.Context, sess *practice.Session) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		snap := sess.Snapshot()
		if !snap.Active() {
			return practice.ErrNoSession
		}
		c.showNotice(snap)

		if snap.ShowSummary {
			if err := c.writeSummary(snap); err != nil {
				return err
			}
			c.renderSummary(ctx, snap)
		} else {
			c.renderCard(ctx, snap)
		}

		cmd, ok := c.readCommand()
		if !ok {
			return c.in.Err()
		}
		if cmd == "q" {
			return nil
		}

		var err error
		if snap.ShowSummary {
			err = c.summaryCommand(ctx, sess, snap, cmd)
		} else {
			c.cardCommand(ctx, sess, snap, cmd)
		}
		if err != nil {
			return err
		}
	}
}

func (c *Console) readCommand() (string, bool) {
	if !c.in.Scan() {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(c.in.Text())), true
}

func (c *Console) cardCommand(ctx context.Context, sess *practice.Session, snap practice.Snapshot, cmd string) {
	switch cmd {
	case "f":
		sess.Flip()
	case "y":
		sess.Next(ctx, practice.Correct)
	case "n":
		sess.Next(ctx, practice.Wrong)
	case "s", "":
		sess.Next(ctx, practice.Skip)
	case "p":
		sess.Previous()
	case "b":
		sess.Bookmark(ctx)
	case "i":
		if len(snap.Instructions) == 0 {
			c.println(i18n.T(ctx, "NoInstructions"))
			return
		}
		for _, line := range snap.Instructions {
			c.println("  " + line)
		}
	default:
		c.println(i18n.Td(ctx, "UnknownCommand", map[string]any{"Command": cmd}))
	}
}

func (c *Console) summaryCommand(ctx context.Context, sess *practice.Session, snap practice.Snapshot, cmd string) error {
	switch cmd {
	case "r":
		sess.ReviewMisses(ctx)
	case "a":
		// Load failures are reported through Notify and leave the summary up.
		_ = sess.Replay(ctx)
	case "u":
		if c.nextSet == nil || !snap.RandomPick {
			c.println(i18n.Td(ctx, "UnknownCommand", map[string]any{"Command": cmd}))
			return nil
		}
		ok, err := c.nextSet(ctx, sess)
		if err != nil {
			return err
		}
		if !ok {
			c.println(i18n.T(ctx, "AllSetsTried"))
		}
	default:
		c.println(i18n.Td(ctx, "UnknownCommand", map[string]any{"Command": cmd}))
	}
	return nil
}

func (c *Console) showNotice(snap practice.Snapshot) {
	if snap.Notice == "" || snap.Notice == c.lastNotice {
		return
	}
	c.lastNotice = snap.Notice
	c.println("! " + snap.Notice)
}

func (c *Console) renderCard(ctx context.Context, snap practice.Snapshot) {
	q, _ := snap.Current()

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s  %s", snap.Set.Name,
		i18n.Td(ctx, "QuestionProgress", map[string]any{"N": snap.Index + 1, "Total": len(snap.Questions)}))
	if q.IsBookmarked {
		b.WriteString("  *")
	}
	fmt.Fprintf(&b, "\nQ: %s\n", q.QuestionText)
	if snap.Flipped {
		fmt.Fprintf(&b, "A: %s\n", q.AnswerText)
	}
	b.WriteString(i18n.T(ctx, "CardPrompt"))
	c.println(b.String())
}

func (c *Console) renderSummary(ctx context.Context, snap practice.Snapshot) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", i18n.T(ctx, "SessionComplete"))
	fmt.Fprintln(&b, i18n.Td(ctx, "ScoreLine", map[string]any{
		"Correct": snap.Stats.Correct,
		"Wrong":   snap.Stats.Wrong,
		"Missed":  snap.MissedCount,
	}))
	for _, q := range snap.Questions {
		if snap.Answers[q.ID] == practice.AnswerCorrect {
			continue
		}
		fmt.Fprintf(&b, "  - %s (%s)\n", q.QuestionText, q.AnswerText)
	}
	b.WriteString(i18n.T(ctx, "SummaryPrompt"))
	if snap.RandomPick && c.nextSet != nil {
		b.WriteString("  " + i18n.T(ctx, "NextSetPrompt"))
	}
	c.println(b.String())
}

// writeSummary emits the JSON summary once per completed run.
func (c *Console) writeSummary(snap practice.Snapshot) error {
	if c.summary == nil || c.lastSummary == snap.RunID {
		return nil
	}
	c.lastSummary = snap.RunID
	enc := json.NewEncoder(c.summary)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap.Summary(c.now())); err != nil {
		return fmt.Errorf("write session summary: %w", err)
	}
	return nil
}
