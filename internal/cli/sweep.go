package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/spot-confirmation/internal/clock"
	"github.com/iliyamo/spot-confirmation/internal/config"
	"github.com/iliyamo/spot-confirmation/internal/sweeper"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	JSON bool
	At   string
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand() *cobra.Command {
	opts := &SweepOptions{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one deadline sweep cycle",
		Long: `Run a single sweep cycle and print what it did.  Intended for cron
when the in-process sweeper is disabled.

With --at nothing is changed: the command prints what a cycle would do
if it ran at that time.

Example:
  spotd sweep --json
  spotd sweep --at 2026-03-02T09:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var at time.Time
			if opts.At != "" {
				var err error
				if at, err = time.Parse(time.RFC3339, opts.At); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, log, clock.System{})
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if !at.IsZero() {
				plan, err := a.sweeper.Preview(cmd.Context(), at)
				if err != nil {
					return err
				}
				return writePlan(out, plan, opts.JSON)
			}

			res, err := a.sweeper.RunCycle(cmd.Context())
			if err != nil {
				return err
			}
			if opts.JSON {
				return json.NewEncoder(out).Encode(res)
			}
			_, err = fmt.Fprintf(out, "scanned=%d expired=%d reminders=%d failed=%d\n", res.Scanned, res.Expired, res.Reminders, res.Failed)
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the result as JSON")
	cmd.Flags().StringVar(&opts.At, "at", "", "dry run: show what a cycle would do at this RFC3339 time")

	return cmd
}

func writePlan(w io.Writer, plan []sweeper.PlannedAction, asJSON bool) error {
	if asJSON {
		if plan == nil {
			plan = []sweeper.PlannedAction{}
		}
		return json.NewEncoder(w).Encode(plan)
	}
	if len(plan) == 0 {
		_, err := fmt.Fprintln(w, "nothing to do")
		return err
	}
	for _, p := range plan {
		line := fmt.Sprintf("%s spot=%s deadline=%s", p.Action, p.SpotID, p.Deadline.Format(time.RFC3339))
		if p.Tier != "" {
			line += " tier=" + p.Tier
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
