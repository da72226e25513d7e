package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sessionkeeper-go/internal/config"
	"sessionkeeper-go/internal/events"
	"sessionkeeper-go/internal/logging"
	"sessionkeeper-go/internal/migrations"
	"sessionkeeper-go/internal/refresh"
)

func newRunCmd(opts *options) *cobra.Command {
	var (
		accounts []string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one refresh pass and exit",
		Long: "Checks every stored credential, logs in the accounts whose credential is missing, " +
			"rejected or flagged for a forced update, and stores the new cookies.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			hub := events.NewHub()
			progress(hub, cmd.ErrOrStderr())
			a, err := newApp(ctx, opts.cfg, hub, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer a.Close()

			var sum refresh.Summary
			if len(accounts) > 0 {
				items, err := a.orch.Select(ctx, accounts)
				if err != nil {
					return err
				}
				sum, err = a.orch.RunItems(ctx, items)
				if err != nil {
					return err
				}
			} else {
				sum, err = a.orch.Run(ctx)
				if err != nil {
					return err
				}
			}
			return printSummary(cmd.OutOrStdout(), sum, asJSON)
		},
	}
	cmd.Flags().StringSliceVarP(&accounts, "account", "a", nil, "refresh only these accounts, regardless of validity")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func printSummary(w io.Writer, sum refresh.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	fmt.Fprintf(w, "run %s: %d accounts, %d checked, %d to refresh, %d succeeded, %d failed",
		sum.RunID, sum.Accounts, sum.Checked, sum.WorkSet, sum.Succeeded, sum.Failed)
	if sum.Canceled > 0 {
		fmt.Fprintf(w, ", %d canceled", sum.Canceled)
	}
	fmt.Fprintf(w, " (%s)\n", sum.Duration.Round(time.Millisecond))
	outcomes := append([]refresh.Outcome(nil), sum.Outcomes...)
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Username < outcomes[j].Username })
	for _, o := range outcomes {
		fmt.Fprintf(w, "  %-20s %-12s %s\n", logging.Account(o.Username), o.Cause, o.Message)
	}
	return nil
}

func newCheckCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report the validity of stored credentials without logging in",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, nil, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			plan, err := a.orch.Plan(ctx)
			if err != nil {
				return err
			}
			rows := checkRows(plan)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			return printCheck(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

type checkRow struct {
	Account string        `json:"account"`
	Status  string        `json:"status"`
	Stored  bool          `json:"stored"`
	Valid   bool          `json:"valid"`
	Reason  string        `json:"reason,omitempty"`
	Refresh refresh.Cause `json:"refresh,omitempty"`
}

func checkRows(plan refresh.Plan) []checkRow {
	causes := map[string]refresh.Cause{}
	for _, it := range plan.Work {
		causes[it.Account.Username] = it.Cause
	}
	rows := make([]checkRow, 0, len(plan.Accounts))
	for _, a := range plan.Accounts {
		v := plan.Verdicts[a.Username]
		rows = append(rows, checkRow{
			Account: logging.Account(a.Username),
			Status:  string(a.Status),
			Stored:  plan.Stored[a.Username],
			Valid:   v.Valid,
			Reason:  v.Reason,
			Refresh: causes[a.Username],
		})
	}
	return rows
}

func printCheck(w io.Writer, rows []checkRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tSTATUS\tSTORED\tVALID\tREFRESH\tREASON")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Account, r.Status,
			strconv.FormatBool(r.Stored), strconv.FormatBool(r.Valid), r.Refresh, r.Reason)
	}
	return tw.Flush()
}

func newMigrateCmd(opts *options) *cobra.Command {
	var (
		dsn   string
		steps int
	)
	cmd := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Manage the postgres account registry schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				dsn = opts.cfg.Accounts.PostgresDSN
			}
			if dsn == "" {
				return fmt.Errorf("no postgres dsn: pass --dsn or set accounts.postgres_dsn")
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			switch args[0] {
			case "up":
				if err := migrations.Up(ctx, dsn); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				fmt.Fprintln(out, "migrations applied")
			case "down":
				if err := migrations.Down(ctx, dsn, steps); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				fmt.Fprintf(out, "rolled back %d step(s)\n", steps)
			case "version":
				v, dirty, err := migrations.Version(ctx, dsn)
				if err != nil {
					return fmt.Errorf("read version: %w", err)
				}
				state := "clean"
				if dirty {
					state = "dirty"
				}
				fmt.Fprintf(out, "current version: %d (%s)\n", v, state)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "postgres connection string (default accounts.postgres_dsn)")
	cmd.Flags().IntVar(&steps, "steps", 1, "steps to roll back with down")
	return cmd
}

// cronDefault makes a daemon non-interactive unless --mode says otherwise.
func cronDefault(opts *options, cfg *config.Config) {
	if opts.mode == "" {
		cfg.Mode = config.ModeCron
	}
}
