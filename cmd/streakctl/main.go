package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"handstreak/cmd/internal/prompt"
	"handstreak/services/streakd"
)

const (
	defaultAddr  = "http://127.0.0.1:7090"
	addrEnv      = "STREAKCTL_ADDR"
	operatorEnv  = "STREAKCTL_OPERATOR"
	usageMessage = `usage: streakctl <command> [flags]

commands:
  process  -file <batch.csv|batch.json> [-day YYYY-MM-DD] [-force]
  lookup   <username>
  revive   -user <username> -streak <n> [-yes]
  referral add -referred <player> -referrer <player> [-hands <n>]
  referral lookup <referrer>
`
)

type confirmer interface {
	Confirm(question string) (bool, error)
}

type cli struct {
	client  *client
	out     io.Writer
	confirm confirmer
}

func main() {
	addr := strings.TrimSpace(os.Getenv(addrEnv))
	if addr == "" {
		addr = defaultAddr
	}
	c := &cli{
		client:  newClient(addr, os.Getenv(operatorEnv)),
		out:     os.Stdout,
		confirm: prompt.NewConfirmer(),
	}
	if err := c.run(context.Background(), os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(os.Stderr, usageMessage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return flag.ErrHelp
	}
	switch args[0] {
	case "process":
		return c.runProcess(ctx, args[1:])
	case "lookup":
		return c.runLookup(ctx, args[1:])
	case "revive":
		return c.runRevive(ctx, args[1:])
	case "referral":
		if len(args) < 2 {
			return flag.ErrHelp
		}
		switch args[1] {
		case "add":
			return c.runReferralAdd(ctx, args[2:])
		case "lookup":
			return c.runReferralLookup(ctx, args[2:])
		}
	}
	return flag.ErrHelp
}

func (c *cli) runProcess(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	file := fs.String("file", "", "Path to the daily batch (csv or json)")
	day := fs.String("day", "", "Day the batch applies to (YYYY-MM-DD)")
	force := fs.Bool("force", false, "Re-apply a day that was already processed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("-file is required")
	}
	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("daily file not found at %s", *file)
	}
	defer f.Close()
	result, err := c.client.process(ctx, f, *file, *day, *force)
	if err != nil {
		return err
	}
	printRun(c.out, result)
	return nil
}

func printRun(out io.Writer, result streakd.RunResult) {
	report := result.Report
	if len(report.Errors) > 0 {
		fmt.Fprintf(out, "Skipped %d rows:\n", len(report.Errors))
		for _, msg := range report.Errors {
			fmt.Fprintf(out, "  - %s\n", msg)
		}
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(out, "WARNING: %s\n", warning)
	}
	if len(report.MilestoneWinners) > 0 {
		fmt.Fprintln(out, "WHEEL WINNERS TODAY")
		for _, line := range report.MilestoneWinners {
			fmt.Fprintln(out, line)
		}
	}
	if len(report.ReferralBonuses) > 0 {
		fmt.Fprintln(out, "REFERRAL BONUSES TODAY")
		for _, line := range report.ReferralBonuses {
			fmt.Fprintln(out, line)
		}
	}
	counts := report.Counts
	fmt.Fprintln(out, "--- PROCESSING COMPLETE ---")
	fmt.Fprintf(out, "Run: %s\n", result.RunID)
	fmt.Fprintf(out, "Total players processed: %d\n", counts.Processed)
	fmt.Fprintf(out, "Updated Players: %d\n", counts.Updated)
	fmt.Fprintf(out, "New Players: %d\n", counts.New)
	fmt.Fprintf(out, "Players that lost streaks: %d\n", counts.LostTotal())
	fmt.Fprintf(out, "Wheel winners: %d\n", counts.MilestoneWinners)
	fmt.Fprintf(out, "Referral bonuses: %d\n", counts.ReferralBonuses)
	fmt.Fprintf(out, "History records updated: %d\n", counts.HistoryUpdates)
	if len(report.SignificantLosses) > 0 {
		fmt.Fprintln(out, "\nSignificant Lost Streaks:")
		for _, lost := range report.SignificantLosses {
			fmt.Fprintf(out, "  - %s\n", lost)
		}
	}
	if result.Files.CSV != "" {
		fmt.Fprintf(out, "Report: %s, %s\n", result.Files.CSV, result.Files.Parquet)
	}
}

func (c *cli) runLookup(ctx context.Context, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("lookup requires a username")
	}
	status, err := c.client.player(ctx, args[0])
	if errors.Is(err, errNotFound) {
		fmt.Fprintf(c.out, "Player '%s' not found in the history database.\n", strings.TrimSpace(args[0]))
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Username: %s\n", status.Username)
	fmt.Fprintf(c.out, "Active streak: %d\n", status.ActiveStreak)
	if h := status.History; h != nil {
		fmt.Fprintf(c.out, "Status: %s\n", h.LastUpdate)
		fmt.Fprintf(c.out, "Last updated: %s\n", h.UpdateDate.Format("2006-01-02"))
		fmt.Fprintf(c.out, "Current streak: %d\n", h.CurrentStreak)
		fmt.Fprintf(c.out, "Highest streak: %d\n", h.HighestStreak)
	}
	if r := status.Referral; r != nil {
		fmt.Fprintf(c.out, "Referred by: %s (%d hands, bonus sent: %t)\n", r.ReferrerPlayer, r.HandsPlayed, r.BonusSent)
	}
	return nil
}

func (c *cli) runRevive(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("revive", flag.ContinueOnError)
	user := fs.String("user", "", "Player to update")
	value := fs.Int64("streak", 0, "Streak value to set")
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*user) == "" {
		return fmt.Errorf("-user is required")
	}
	if *value < 1 {
		return fmt.Errorf("streak value must be positive")
	}
	reply, err := c.client.propose(ctx, *user, *value)
	if err != nil {
		return err
	}
	if reply.Applied {
		fmt.Fprintln(c.out, reply.Message)
		return nil
	}
	fmt.Fprintf(c.out, "WARNING: %s\n", reply.Prompt)
	proceed := *yes
	if !proceed {
		proceed, err = c.confirm.Confirm("Do you want to proceed?")
		if err != nil {
			_ = c.client.cancel(ctx)
			return err
		}
	}
	if !proceed {
		if err := c.client.cancel(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Operation cancelled.")
		return nil
	}
	confirmed, err := c.client.confirm(ctx, reply.Confirmation.Username, reply.Confirmation.NewStreak)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, confirmed.Message)
	return nil
}

func (c *cli) runReferralAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("referral add", flag.ContinueOnError)
	referred := fs.String("referred", "", "Player who was referred")
	referrer := fs.String("referrer", "", "Player who made the referral")
	hands := fs.Int64("hands", 0, "Hands already played by the referred player")
	if err := fs.Parse(args); err != nil {
		return err
	}
	entry, err := c.client.addReferral(ctx, *referred, *hands, *referrer)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Added referral: %s referred by %s\n", entry.ReferredPlayer, entry.ReferrerPlayer)
	return nil
}

func (c *cli) runReferralLookup(ctx context.Context, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("referral lookup requires a referrer")
	}
	summary, err := c.client.referrals(ctx, args[0])
	if err != nil {
		return err
	}
	if summary.TotalReferrals == 0 {
		fmt.Fprintf(c.out, "No referrals found for %s\n", summary.Referrer)
		return nil
	}
	fmt.Fprintf(c.out, "Referrals by %s: %d (bonuses earned: %d)\n", summary.Referrer, summary.TotalReferrals, summary.BonusesEarned)
	for _, s := range summary.Referrals {
		if s.BonusReceived {
			fmt.Fprintf(c.out, "  - %s: %d hands, bonus received\n", s.ReferredPlayer, s.HandsPlayed)
			continue
		}
		fmt.Fprintf(c.out, "  - %s: %d hands, %d to bonus\n", s.ReferredPlayer, s.HandsPlayed, s.HandsToBonus)
	}
	return nil
}
