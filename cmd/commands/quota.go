package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/advisorbot/internal/config"
	"github.com/dohr-michael/advisorbot/internal/governance"
)

// NewQuotaCommand returns the quota subcommand.
func NewQuotaCommand() *cli.Command {
	return &cli.Command{
		Name:      "quota",
		Usage:     "Inspect a student's daily email/ticket quota",
		ArgsUsage: "<user_id>",
		Action:    runQuota,
	}
}

func runQuota(_ context.Context, cmd *cli.Command) error {
	userID := cmd.Args().First()
	if userID == "" {
		return fmt.Errorf("usage: advisorbot quota <user_id>")
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	svc, err := governance.New(cfg.Governance.DBPath, cfg.Governance.Timezone, cfg.Governance.EmailDailyMax, cfg.Governance.TicketDailyMax)
	if err != nil {
		return fmt.Errorf("open governance store: %w", err)
	}
	defer svc.Close()

	limits := svc.GetRemainingLimits(userID)
	fmt.Printf("emails remaining:  %d / %d\n", limits.EmailsRemaining, limits.EmailsMax)
	fmt.Printf("tickets remaining: %d / %d\n", limits.TicketsRemaining, limits.TicketsMax)

	activity, err := svc.RecentActivity(userID, 10)
	if err != nil {
		return fmt.Errorf("load activity: %w", err)
	}
	if len(activity) == 0 {
		return nil
	}

	fmt.Println("\nrecent activity:")
	for _, a := range activity {
		fmt.Printf("  [%s] %s: %s\n", a.Timestamp.Format("2006-01-02 15:04"), a.Type, a.Description)
	}
	return nil
}
