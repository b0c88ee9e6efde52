package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/olympiad/internal/handler"
	appI18n "github.com/pavelanni/olympiad/internal/i18n"
	"github.com/pavelanni/olympiad/internal/llm"
	"github.com/pavelanni/olympiad/internal/llm/prompts"
	"github.com/pavelanni/olympiad/internal/model"
	"github.com/pavelanni/olympiad/internal/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "olympiad.db", "SQLite database path")
	f.StringSliceP("exams", "e", nil, "Exam JSON files to import at startup (repeatable)")
	f.StringP("lang", "l", "en", "Default message language (en, vi)")
	f.Bool("dev", false, "Include internal error details in API responses")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set OLYMPIAD_ADMIN_PASSWORD)")
	f.Duration("session-ttl", store.DefaultSessionTTL, "Lifetime of a login session")
	f.String("session-cleanup", "@hourly", "Cron schedule for purging expired login sessions")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty disables explanation drafting)")
	f.String("llm-key", "", "API key for LLM")
	f.String("llm-model", "gpt-4o-mini", "LLM model name")
	f.String("explain-style", string(prompts.StyleConcise), "Explanation style (concise, detailed)")
	addLogFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := importFiles(ctx, db, v.GetStringSlice("exams")); err != nil {
		return fmt.Errorf("import exams: %w", err)
	}

	llmClient, err := newLLMClient(ctx, v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"), v.GetString("explain-style"))
	if err != nil {
		return err
	}

	jobs := cron.New()
	if _, err := jobs.AddFunc(v.GetString("session-cleanup"), func() {
		n, err := db.CleanupExpiredSessions(context.Background())
		if err != nil {
			slog.Error("session cleanup failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("purged expired sessions", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("schedule session cleanup: %w", err)
	}
	jobs.Start()
	defer func() { <-jobs.Stop().Done() }()

	h := handler.New(db, llmClient, model.ServerConfig{
		Lang:          lang,
		DevMode:       v.GetBool("dev"),
		SecureCookies: v.GetBool("secure-cookies"),
		SessionTTL:    v.GetDuration("session-ttl"),
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware)
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"dev", v.GetBool("dev"),
		"llm", llmClient != nil,
		"session_cleanup", v.GetString("session-cleanup"),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newLLMClient returns nil when no endpoint is configured.
func newLLMClient(ctx context.Context, url, key, modelName, style string) (*llm.Client, error) {
	if url == "" {
		slog.Info("no LLM endpoint configured, explanation drafting disabled")
		return nil, nil
	}
	style = strings.ToLower(strings.TrimSpace(style))
	if !prompts.IsValidStyle(style) {
		slog.Warn("invalid explain-style, using concise", "style", style)
		style = string(prompts.StyleConcise)
	}
	c, err := llm.New(url, key, modelName, prompts.Style(style))
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		slog.Warn("LLM health check failed, drafting may not work", "url", url, "error", err)
	} else {
		slog.Info("LLM endpoint OK", "url", url, "model", modelName)
	}
	return c, nil
}

func seedAdmin(ctx context.Context, db *store.Store, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or OLYMPIAD_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(ctx, model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
