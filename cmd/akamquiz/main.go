package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/akamquiz/akamquiz/internal/auth"
	"github.com/akamquiz/akamquiz/internal/bank"
	"github.com/akamquiz/akamquiz/internal/contact"
	"github.com/akamquiz/akamquiz/internal/handler"
	appI18n "github.com/akamquiz/akamquiz/internal/i18n"
	"github.com/akamquiz/akamquiz/internal/session"
	"github.com/akamquiz/akamquiz/internal/stats"
	"github.com/akamquiz/akamquiz/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "akamquiz",
		Short: "Exam-preparation quiz server",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "akamquiz.db", "SQLite database path")
	f.StringSliceP("questions", "q", []string{"questions/matematika.json"}, "Paths to question JSON files (repeatable)")
	f.StringP("lang", "l", "uz", "UI language (uz, en)")
	f.Duration("stats-interval", stats.DefaultInterval, "Dashboard stats refresh interval")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("demo-password", "", "Seed a demo account with this password when no users exist")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all test results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "akamquiz.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
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

	v.SetEnvPrefix("AKAMQUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("akamquiz")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/akamquiz")
	v.AddConfigPath("/etc/akamquiz")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
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

	qbank, err := bank.Load(v.GetStringSlice("questions"))
	if err != nil {
		return fmt.Errorf("load question bank: %w", err)
	}
	slog.Info("question bank ready", "questions", qbank.Count(), "subjects", qbank.Subjects())

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	aggregator := stats.NewAggregator(db, qbank.Count())
	refresher := stats.NewRefresher(aggregator, v.GetDuration("stats-interval"))
	refresher.Start(db)
	defer refresher.Stop()

	authMgr := auth.NewManager(db, aggregator)
	if err := seedDemoUser(authMgr, db, v.GetString("demo-password")); err != nil {
		return fmt.Errorf("seed demo user: %w", err)
	}

	registry := session.NewRegistry(qbank, db, authMgr.UpdateStatsFor)
	contactSvc := contact.NewService(db)

	h := handler.New(db, authMgr, registry, refresher, contactSvc, v.GetBool("secure-cookies"))

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"questions", qbank.Count(),
		"stats_interval", v.GetDuration("stats-interval"),
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportResults()
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	return nil
}

// seedDemoUser creates a demo account on first run so the app is usable
// before anyone registers.
func seedDemoUser(authMgr *auth.Manager, db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 || password == "" {
		return nil
	}

	user, token, err := authMgr.Register("demo_user", "demo@test.uz", "Demo Foydalanuvchi", password)
	if err != nil {
		return err
	}
	// Registration signs the account in; the demo seed should not.
	if err := authMgr.Logout(token.Token); err != nil {
		return err
	}
	slog.Info("seeded demo user", "username", user.Username)
	return nil
}
