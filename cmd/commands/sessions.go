package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/advisorbot/internal/chatmemory"
	"github.com/dohr-michael/advisorbot/internal/config"
)

// NewSessionsCommand returns the sessions subcommand.
func NewSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "sessions",
		Usage:     "Show a student's chat history for a session",
		ArgsUsage: "<user_id> <session_id>",
		Action:    runSessions,
	}
}

func runSessions(_ context.Context, cmd *cli.Command) error {
	userID := cmd.Args().Get(0)
	sessionID := cmd.Args().Get(1)
	if userID == "" || sessionID == "" {
		return fmt.Errorf("usage: advisorbot sessions <user_id> <session_id>")
	}

	store := chatmemory.NewFileStore(filepath.Join(config.AdvisorbotPath(), "chatmemory"))

	msgs, err := store.SessionHistory(userID, sessionID, 0)
	if err != nil {
		return fmt.Errorf("load session history: %w", err)
	}
	if len(msgs) == 0 {
		fmt.Println("No messages in this session.")
		return nil
	}

	for _, m := range msgs {
		fmt.Printf("[%s] %s: %s\n", m.Ts.Format("15:04:05"), m.Role, m.Content)
	}
	return nil
}
