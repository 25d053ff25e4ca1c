package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/dohr-michael/advisorbot/internal/config"
	"github.com/dohr-michael/advisorbot/internal/gateway"
	"github.com/dohr-michael/advisorbot/internal/orchestrator"
)

// NewConsoleCommand returns the console subcommand.
func NewConsoleCommand() *cli.Command {
	return &cli.Command{
		Name:  "console",
		Usage: "Interactive manual-QA chat loop against the orchestrator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "user",
				Usage: "Student user ID (e.g. an email address)",
				Value: "student@college.edu",
			},
			&cli.StringFlag{
				Name:  "session",
				Usage: "Session ID to resume (empty = new session)",
			},
		},
		Action: runConsole,
	}
}

func runConsole(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config not found, using defaults: %v\n", err)
		cfg = config.Default()
	}

	deps, err := buildDependencies(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build dependencies: %w", err)
	}
	defer deps.Close()

	userID := cmd.String("user")
	sessionID := cmd.String("session")
	if sessionID == "" {
		sessionID = "console-" + uuid.New().String()[:8]
	}

	renderer := newConsoleRenderer()

	fmt.Printf("advisorbot console — user %s, session %s. Type 'exit' to quit.\n", userID, sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if message == "exit" || message == "quit" {
			break
		}

		result, err := deps.Orchestrator.Handle(ctx, gateway.OrchestratorRequest{
			Message:   message,
			SessionID: sessionID,
			UserID:    userID,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		printEnvelope(renderer, result)
	}

	return scanner.Err()
}

func newConsoleRenderer() *glamour.TermRenderer {
	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return renderer
}

func printEnvelope(renderer *glamour.TermRenderer, result any) {
	env, ok := result.(orchestrator.Envelope)
	if !ok {
		fmt.Printf("%v\n", result)
		return
	}

	content := fmt.Sprintf("%v", env.Content)
	if renderer != nil {
		if rendered, err := renderer.Render(content); err == nil {
			content = strings.TrimRight(rendered, "\n")
		}
	}

	fmt.Printf("[%s/%s] %s\n", env.Agent, env.Type, content)
	if env.AgentOutput != nil && len(env.AgentOutput.Citations) > 0 {
		fmt.Println("sources:", strings.Join(env.AgentOutput.Citations, ", "))
	}
}
