package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	einoCallbacks "github.com/cloudwego/eino/callbacks"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/advisorbot/internal/actors"
	advisorbotCallbacks "github.com/dohr-michael/advisorbot/internal/callbacks"
	"github.com/dohr-michael/advisorbot/internal/chatmemory"
	"github.com/dohr-michael/advisorbot/internal/classify"
	"github.com/dohr-michael/advisorbot/internal/collaborators"
	"github.com/dohr-michael/advisorbot/internal/config"
	"github.com/dohr-michael/advisorbot/internal/dedup"
	"github.com/dohr-michael/advisorbot/internal/emailflow"
	"github.com/dohr-michael/advisorbot/internal/events"
	"github.com/dohr-michael/advisorbot/internal/executor"
	"github.com/dohr-michael/advisorbot/internal/flow"
	"github.com/dohr-michael/advisorbot/internal/gateway"
	"github.com/dohr-michael/advisorbot/internal/governance"
	"github.com/dohr-michael/advisorbot/internal/handlers"
	"github.com/dohr-michael/advisorbot/internal/heartbeat"
	"github.com/dohr-michael/advisorbot/internal/models"
	"github.com/dohr-michael/advisorbot/internal/orchestrator"
	"github.com/dohr-michael/advisorbot/internal/retrieval"
	"github.com/dohr-michael/advisorbot/internal/ticketflow"
	"github.com/dohr-michael/advisorbot/internal/turnlog"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the advisorbot gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(_ context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = config.Default()
	}

	logLevel := resolveLogLevel(cfg.Events.LogLevel)
	if cmd.Bool("debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	deps, err := buildDependencies(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build dependencies: %w", err)
	}
	defer deps.Close()

	hb := heartbeat.NewWriter(filepath.Join(config.AdvisorbotPath(), "heartbeat.json"))
	hb.Start()
	defer hb.Stop()

	server := gateway.NewServer(deps.Bus, deps.Memory, deps.Orchestrator, cfg.Gateway.Host, cfg.Gateway.Port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func resolveLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// serveDeps holds every component wired together for a running gateway,
// plus the handles needed to close them in reverse order.
type serveDeps struct {
	Bus          *events.Bus
	Memory       chatmemory.Store
	Orchestrator *orchestrator.Orchestrator

	faculty *collaborators.FacultyDirectory
	emails  *collaborators.EmailLog
	tickets *collaborators.TicketStore
	usage   *governance.Service
	turnLog *turnlog.Logger
	sweeper *flow.Sweeper
}

func (d *serveDeps) Close() {
	d.Bus.Close()
	if d.sweeper != nil {
		d.sweeper.Stop()
	}
	if d.turnLog != nil {
		d.turnLog.Close()
	}
	if d.usage != nil {
		d.usage.Close()
	}
	if d.tickets != nil {
		d.tickets.Close()
	}
	if d.emails != nil {
		d.emails.Close()
	}
	if d.faculty != nil {
		d.faculty.Close()
	}
}

// buildDependencies wires every C1-C10 component from config, the way
// gateway.go wires the teacher's agent stack: registry first, then the
// collaborator directories, then the flows and handlers that consume
// them, finally the orchestrator that ties them together.
func buildDependencies(ctx context.Context, cfg *config.Config) (*serveDeps, error) {
	bus := events.NewBus(cfg.Events.BufferSize)

	cbHandler := advisorbotCallbacks.NewEventBusHandler(bus, events.SourceModel)
	einoCallbacks.AppendGlobalHandlers(cbHandler)

	registry := models.NewRegistry(cfg.Models)
	chatModel, err := registry.Default(ctx)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("init default model: %w", err)
	}

	base := config.AdvisorbotPath()

	faculty, err := collaborators.NewFacultyDirectory(filepath.Join(base, "faculty.db"))
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("open faculty directory: %w", err)
	}
	emailLog, err := collaborators.NewEmailLog(filepath.Join(base, "emails.db"))
	if err != nil {
		faculty.Close()
		bus.Close()
		return nil, fmt.Errorf("open email log: %w", err)
	}
	tickets, err := collaborators.NewTicketStore(filepath.Join(base, "tickets.db"))
	if err != nil {
		emailLog.Close()
		faculty.Close()
		bus.Close()
		return nil, fmt.Errorf("open ticket store: %w", err)
	}

	usage, err := governance.New(cfg.Governance.DBPath, cfg.Governance.Timezone, cfg.Governance.EmailDailyMax, cfg.Governance.TicketDailyMax)
	if err != nil {
		tickets.Close()
		emailLog.Close()
		faculty.Close()
		bus.Close()
		return nil, fmt.Errorf("open governance store: %w", err)
	}

	flowDB := flow.NewStore(cfg.Flow.InactivityTTL.Duration())
	sweeper := flow.NewSweeper(flowDB, cfg.Flow.SweepInterval.Duration())
	sweeper.Start()

	chatStore := chatmemory.NewFileStore(filepath.Join(base, "chatmemory"))

	var engine *retrieval.Engine
	if cfg.Embedding.IsEnabled() {
		embedder, embedErr := retrieval.NewEmbedder(ctx, cfg.Embedding)
		if embedErr != nil {
			slog.Warn("retrieval disabled: failed to create embedder", "error", embedErr)
		} else {
			engine, err = retrieval.New(ctx, cfg.Retrieval, embedder)
			if err != nil {
				slog.Warn("retrieval disabled: failed to open index", "error", err)
			}
		}
	}

	turnLog, err := turnlog.New(filepath.Join(base, "turnlog.jsonl"))
	if err != nil {
		usage.Close()
		tickets.Close()
		emailLog.Close()
		faculty.Close()
		bus.Close()
		return nil, fmt.Errorf("open turn log: %w", err)
	}

	faqHandler := &handlers.FAQHandler{Model: chatModel, Engine: engine, Faculty: faculty, Emails: emailLog, Usage: usage}
	greetingHandler := &handlers.GreetingHandler{}
	ticketStatusHandler := &handlers.TicketStatusHandler{Tickets: tickets}

	emailFlow := &emailflow.Flow{Model: chatModel, Faculty: faculty, FlowDB: flowDB}
	ticketFlow := &ticketflow.Flow{Model: chatModel, FlowDB: flowDB}

	exec := executor.New(emailLog, tickets, usage, flowDB)

	dedupCache := dedup.New(cfg.Dedup.TTL.Duration(), cfg.Dedup.BucketWidth.Duration(), cfg.Dedup.BypassKeywords)
	classifier := classify.New(chatModel)
	pool := actors.NewPool()

	orch := &orchestrator.Orchestrator{
		FlowDB:       flowDB,
		Memory:       chatStore,
		Classifier:   classifier,
		Dedup:        dedupCache,
		Executor:     exec,
		TurnLog:      turnLog,
		Actors:       pool,
		Bus:          bus,
		FAQ:          faqHandler,
		Greeting:     greetingHandler,
		TicketStatus: ticketStatusHandler,
		EmailFlow:    emailFlow,
		TicketFlow:   ticketFlow,
		HistoryLimit: 10,
	}

	return &serveDeps{
		Bus:          bus,
		Memory:       chatStore,
		Orchestrator: orch,
		faculty:      faculty,
		emails:       emailLog,
		tickets:      tickets,
		usage:        usage,
		turnLog:      turnLog,
		sweeper:      sweeper,
	}, nil
}
