package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"schedbot"
	"schedbot/bot"
	"schedbot/calendar"
	"schedbot/digest"
	"schedbot/models/gemini"
	"schedbot/models/genaisdk"
	"schedbot/server"
	"schedbot/stores"
	"schedbot/tools"
)

const defaultSystemPrompt = `You are a scheduling assistant. You manage the user's calendar ` +
	`through the provided functions: add_calendar_event, list_calendar_events, ` +
	`update_calendar_event, delete_calendar_event. ` +
	`Dates are YYYY-MM-DD and times are HH:MM (24h). When the user asks for anything ` +
	`calendar related, call the appropriate function instead of describing what you would do. ` +
	`Keep replies short.`

func main() {
	logger := log.New(os.Stdout, "[Main] ", log.LstdFlags)

	if err := godotenv.Load(); err != nil {
		logger.Printf("no .env file found, using environment variables")
	}

	store, err := buildStore()
	if err != nil {
		logger.Fatalf("failed to open message store: %v", err)
	}
	defer store.Close()

	cfg := schedbot.NewConfig().
		WithStore(store).
		WithModelName(envOr("GEMINI_MODEL", "gemini-2.0-flash")).
		WithProvider(envOr("LLM_PROVIDER", "rest")).
		WithSystemPrompt(envOr("SYSTEM_PROMPT", defaultSystemPrompt))

	calClient := calendar.NewClient(nil)
	if base := os.Getenv("CALENDAR_BASE_URL"); base != "" {
		calClient.WithBaseURL(base)
	}
	if id := os.Getenv("CALENDAR_ID"); id != "" {
		calClient.WithCalendarID(id)
	}
	if tz := os.Getenv("CALENDAR_TIMEZONE"); tz != "" {
		calClient.WithTimezone(tz)
	}

	registry := tools.NewRegistry()
	tools.RegisterCalendarTools(registry, calClient)

	model, err := buildModel(cfg)
	if err != nil {
		logger.Fatalf("failed to create model: %v", err)
	}
	agent := schedbot.Create_Agent(model, registry)

	orch := schedbot.NewOrchestrator(agent, store)
	if db := store.DB(); db != nil {
		invLog, err := stores.NewGORMInvocationLog(db)
		if err != nil {
			logger.Fatalf("failed to create invocation log: %v", err)
		}
		orch.WithInvocationLog(invLog)
	}

	srv := server.NewServer(orch, store)
	go func() {
		addr := envOr("HTTP_ADDR", ":8080")
		logger.Printf("http server listening on %s", addr)
		if err := srv.Run(addr); err != nil {
			logger.Fatalf("http server stopped: %v", err)
		}
	}()

	token := os.Getenv("DISCORD_BOT_TOKEN")
	if token == "" {
		logger.Fatalf("DISCORD_BOT_TOKEN is not set")
	}

	b := bot.NewBot(orch, nil)
	scheduler := digest.NewScheduler(calClient, b.SendDM, envOr("DIGEST_SCHEDULE", "0 7 * * *"))
	b.Digest = scheduler

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := b.Start(ctx, token); err != nil {
		logger.Fatalf("failed to start discord bot: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatalf("failed to start digest scheduler: %v", err)
	}

	logger.Printf("schedbot is running, press ctrl-c to exit")
	<-ctx.Done()

	scheduler.Stop()
	if err := b.Stop(); err != nil {
		logger.Printf("shutdown error: %v", err)
	}
}

func buildStore() (stores.MessageStore, error) {
	storeType := strings.ToLower(envOr("STORE_TYPE", "sqlite"))
	switch storeType {
	case "postgres":
		dsn := os.Getenv("POSTGRES_DSN")
		if dsn != "" {
			return stores.NewPostgresStoreSimple(dsn)
		}
		return stores.NewPostgresStoreDefault(
			envOr("POSTGRES_HOST", "localhost"),
			envOr("POSTGRES_USER", "postgres"),
			os.Getenv("POSTGRES_PASSWORD"),
			envOr("POSTGRES_DB", "schedbot"),
			5432,
		)
	default:
		return stores.NewSQLiteStoreSimple(envOr("SQLITE_PATH", "schedbot_history.sqlite"))
	}
}

func buildModel(cfg *schedbot.Config) (schedbot.Model, error) {
	if strings.ToLower(cfg.Provider) == "sdk" {
		return genaisdk.NewGenai_Model(context.Background(), cfg.ModelName, cfg.SystemPrompt, os.Getenv("GEMINI_API_KEY"))
	}
	return &gemini.Gemini_Model{
		Model:        cfg.ModelName,
		SystemPrompt: cfg.SystemPrompt,
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
