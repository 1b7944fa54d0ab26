package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/pushups/internal/client"
	"github.com/pavelanni/pushups/internal/console"
	appI18n "github.com/pavelanni/pushups/internal/i18n"
	"github.com/pavelanni/pushups/internal/model"
	"github.com/pavelanni/pushups/internal/practice"
	"github.com/pavelanni/pushups/internal/store"
)

func setsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sets",
		Short: "List question sets with your progress",
		Args:  cobra.NoArgs,
		RunE:  runSets,
	}
	addClientFlags(cmd)
	return cmd
}

func practiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "practice [set-id]",
		Short: "Practice one question set",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPractice,
	}
	addClientFlags(cmd)
	f := cmd.Flags()
	f.BoolP("continue", "c", false, "Resume the most recently started set")
	f.BoolP("random", "r", false, "Pick a random set you have not played yet")
	return cmd
}

func mixedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mixed",
		Short: "Practice random questions from all sets",
		Args:  cobra.NoArgs,
		RunE:  runMixed,
	}
	addClientFlags(cmd)
	cmd.Flags().StringP("filter", "f", string(model.FilterAll), "Question pool (all, unattempted, missed, bookmarks)")
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show your lifetime statistics",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
	addClientFlags(cmd)
	return cmd
}

func addClientFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("server", "http://localhost:8080", "API server URL")
	f.StringP("username", "u", "", "Sign in as this user (empty = guest)")
	f.String("password", "", "Password (or set PUSHUPS_PASSWORD)")
	f.String("state", defaultStatePath(), "SQLite file storing resume positions")
	f.StringP("lang", "l", "en", "Interface language (en, ru)")
	f.String("summary", "", "Write a JSON summary of each finished session to this file (- for stdout)")
	addLogFlags(f)
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "pushups-state.db"
	}
	return filepath.Join(dir, "pushups", "state.db")
}

// clientEnv is everything a client command needs.
type clientEnv struct {
	v      *viper.Viper
	ctx    context.Context
	client *client.Client
	state  *store.Store
}

func newClientEnv(cmd *cobra.Command, withState bool) (*clientEnv, func(), error) {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return nil, nil, fmt.Errorf("init i18n: %w", err)
	}
	ctx, stop := signal.NotifyContext(localized(cmd.Context(), lang), os.Interrupt)

	env := &clientEnv{v: v, ctx: ctx, client: client.New(v.GetString("server"), lang)}
	cleanup := func() {
		if env.state != nil {
			env.state.Close()
		}
		stop()
	}

	if err := env.client.Health(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("server %s unreachable: %w", v.GetString("server"), err)
	}
	if username := v.GetString("username"); username != "" {
		if _, err := env.client.Login(ctx, username, v.GetString("password")); err != nil {
			cleanup()
			return nil, nil, err
		}
		slog.Debug("signed in", "username", username)
	}

	if withState {
		path := v.GetString("state")
		if err := ensureDir(path); err != nil {
			cleanup()
			return nil, nil, err
		}
		st, err := store.New(path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open state %s: %w", path, err)
		}
		env.state = st
	}
	return env, cleanup, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	return nil
}

func runSets(cmd *cobra.Command, _ []string) error {
	env, cleanup, err := newClientEnv(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	sets, err := env.client.ListSets(env.ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tQUESTIONS\tATTEMPTED\tOPENED")
	for _, s := range sets {
		opened := ""
		if s.DirectlyOpened {
			opened = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", s.ID, s.Name, s.QuestionCount, s.QuestionsAttempted, opened)
	}
	return w.Flush()
}

func runStats(cmd *cobra.Command, _ []string) error {
	env, cleanup, err := newClientEnv(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	st, err := env.client.Stats(env.ctx)
	if errors.Is(err, client.ErrNotSignedIn) {
		return fmt.Errorf("stats need a signed-in user: pass --username")
	}
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Questions:  %d\n", st.TotalQuestions)
	fmt.Fprintf(out, "Attempted:  %d\n", st.Attempted)
	fmt.Fprintf(out, "Correct:    %d (%.1f%%)\n", st.Correct, st.Accuracy)
	fmt.Fprintf(out, "Missed:     %d\n", st.Missed)
	fmt.Fprintf(out, "Bookmarks:  %d\n", st.Bookmarks)
	fmt.Fprintf(out, "Streak:     %d day(s)\n", st.Streak)
	return nil
}

func runPractice(cmd *cobra.Command, args []string) error {
	env, cleanup, err := newClientEnv(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	random := env.v.GetBool("random")
	picker := practice.NewPicker()
	var next console.NextSetFunc
	if random {
		next = env.nextUnplayed(picker)
	}
	con, sess, closeSummary, err := env.session(cmd, next)
	if err != nil {
		return err
	}
	defer closeSummary()

	sets, err := env.client.ListSets(env.ctx)
	if err != nil {
		return err
	}

	var set model.QuestionSet
	switch {
	case random:
		var ok bool
		if set, ok = picker.Pick(sets, 0); !ok {
			fmt.Fprintln(cmd.OutOrStdout(), appI18n.T(env.ctx, "AllSetsTried"))
			return nil
		}
		picker.Opened(set.ID)
	case env.v.GetBool("continue"):
		id, ok := sess.Positions().Last()
		if !ok {
			return fmt.Errorf("no set to continue: start one with `pushups practice <set-id>`")
		}
		if set, err = findSet(sets, id); err != nil {
			return err
		}
	case len(args) == 1:
		n, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid set id %q", args[0])
		}
		if set, err = findSet(sets, model.SetID(n)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("pass a set id, --continue or --random")
	}

	if err := startReported(cmd.OutOrStdout(), sess, sess.Start(env.ctx, set, random)); err != nil {
		return ignoreEmpty(err)
	}
	return con.Run(env.ctx, sess)
}

func runMixed(cmd *cobra.Command, _ []string) error {
	env, cleanup, err := newClientEnv(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	con, sess, closeSummary, err := env.session(cmd, nil)
	if err != nil {
		return err
	}
	defer closeSummary()

	filter := model.Filter(env.v.GetString("filter"))
	switch filter {
	case model.FilterAll, model.FilterUnattempted, model.FilterMissed, model.FilterBookmarks:
	default:
		return fmt.Errorf("unknown filter %q", filter)
	}
	if err := startReported(cmd.OutOrStdout(), sess, sess.StartMixed(env.ctx, filter)); err != nil {
		return ignoreEmpty(err)
	}
	return con.Run(env.ctx, sess)
}

// session wires a console and a practice session to the client.
func (e *clientEnv) session(cmd *cobra.Command, next console.NextSetFunc) (*console.Console, *practice.Session, func(), error) {
	summary, closeSummary, err := e.summaryWriter()
	if err != nil {
		return nil, nil, nil, err
	}
	con := console.New(console.Options{
		In:      cmd.InOrStdin(),
		Out:     cmd.OutOrStdout(),
		Summary: summary,
		NextSet: next,
	})
	sess := practice.New(practice.Config{
		Backend:   e.client,
		Positions: e.state,
		User:      e.client.User(),
		Notify:    con.Notify,
	})
	return con, sess, closeSummary, nil
}

// nextUnplayed starts another random set the picker has not handed out yet.
func (e *clientEnv) nextUnplayed(picker *practice.Picker) console.NextSetFunc {
	return func(ctx context.Context, sess *practice.Session) (bool, error) {
		sets, err := e.client.ListSets(ctx)
		if err != nil {
			return false, err
		}
		set, ok := picker.Pick(sets, sess.Snapshot().Set.ID)
		if !ok {
			return false, nil
		}
		picker.Opened(set.ID)
		var loadErr *practice.LoadError
		if err := sess.Start(ctx, set, true); err != nil && !errors.As(err, &loadErr) && !errors.Is(err, practice.ErrNoQuestions) {
			return false, err
		}
		// Load failures and empty sets were reported through the session.
		return true, nil
	}
}

func (e *clientEnv) summaryWriter() (io.Writer, func(), error) {
	path := e.v.GetString("summary")
	if path == "" {
		return nil, func() {}, nil
	}
	return openOutput(path)
}

// startReported prints the session notice when a start produced nothing to
// practice.
func startReported(out io.Writer, sess *practice.Session, err error) error {
	if errors.Is(err, practice.ErrNoQuestions) {
		if n := sess.Snapshot().Notice; n != "" {
			fmt.Fprintln(out, "! "+n)
		}
	}
	return err
}

func ignoreEmpty(err error) error {
	if errors.Is(err, practice.ErrNoQuestions) {
		return nil
	}
	return err
}

func findSet(sets []model.QuestionSet, id model.SetID) (model.QuestionSet, error) {
	for _, s := range sets {
		if s.ID == id {
			return s, nil
		}
	}
	return model.QuestionSet{}, fmt.Errorf("question set %d: %w", id, store.ErrNotFound)
}
