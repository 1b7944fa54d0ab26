package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/pushups/internal/handler"
	appI18n "github.com/pavelanni/pushups/internal/i18n"
	"github.com/pavelanni/pushups/internal/model"
	"github.com/pavelanni/pushups/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pushups",
		Short: "Flashcard practice server and terminal client",
		PersistentPreRun: func(*cobra.Command, []string) {
			// A missing .env file is fine.
			_ = godotenv.Load()
		},
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), setsCmd(), practiceCmd(), mixedCmd(), statsCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `pushups --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "pushups.db", "SQLite database path")
	f.StringSliceP("sets", "s", nil, "Paths to question set JSON files (repeatable)")
	f.StringP("lang", "l", "en", "Fallback language for API errors (en, ru)")
	f.Duration("token-ttl", store.DefaultTokenTTL, "Lifetime of login tokens")
	f.Int("mixed-limit", 0, "Default size cap for random-mode pools (0 = no cap)")
	f.String("admin-password", "", "Initial admin password (or set PUSHUPS_ADMIN_PASSWORD)")
	addLogFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's missed questions as a JSON deck",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "pushups.db", "SQLite database path")
	f.String("user", "", "Username whose missed questions are exported (required)")
	f.Bool("mark-exported", false, "Hide exported questions from later exports until missed again")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("user")

	return cmd
}

type flagSet interface {
	String(name, value, usage string) *string
}

func addLogFlags(f flagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PUSHUPS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("pushups")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/pushups")
	v.AddConfigPath("/etc/pushups")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := importSets(db, v.GetStringSlice("sets")); err != nil {
		return fmt.Errorf("import sets: %w", err)
	}
	if n, err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("failed to clean up expired tokens", "error", err)
	} else if n > 0 {
		slog.Info("removed expired tokens", "count", n)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	h := handler.New(db, handler.Config{
		TokenTTL:   v.GetDuration("token-ttl"),
		MixedLimit: v.GetInt("mixed-limit"),
	})

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"lang", lang,
		"token_ttl", v.GetDuration("token-ttl"),
		"mixed_limit", v.GetInt("mixed-limit"),
	)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(lang),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	deck, err := db.ExportMissed(v.GetString("user"), v.GetBool("mark-exported"))
	if err != nil {
		return fmt.Errorf("export missed questions: %w", err)
	}

	data, err := json.MarshalIndent(deck, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	w, closeOut, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer closeOut()

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported missed questions", "user", deck.Username, "cards", len(deck.Cards))
	return nil
}

// openOutput opens path for writing; "" and "-" mean stdout.
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func importSets(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if _, _, err := db.ImportSet(name, data); err != nil {
			return err
		}
	}
	return nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or PUSHUPS_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}

// localized returns ctx carrying a localizer for lang.
func localized(ctx context.Context, lang string) context.Context {
	return appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(lang))
}
