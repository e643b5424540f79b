// Command emulator replays lock plans against radio profiles offline and
// prints feasible parameter ranges.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/signalsfoundry/radio-emulator/core"
	"github.com/signalsfoundry/radio-emulator/internal/logging"
	"github.com/signalsfoundry/radio-emulator/internal/observability"
	"github.com/spf13/cobra"
)

type options struct {
	profile       string
	plan          string
	radio         string
	maxIterations int
}

func newRootCmd(log logging.Logger) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "emulator",
		Short:         "Validate radio configurations against transceiver constraints",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&opts.profile, "profile", "p", "configs/radios.yaml", "Radio profile (.yaml, .yml or .json)")
	root.PersistentFlags().IntVar(&opts.maxIterations, "max-iterations", 0, "Propagation loop cap per solver; 0 keeps the solver default")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Replay a lock plan and report each outcome",
		Long:  `The check command loads the profile, replays every plan step in order and fails when a step's outcome differs from its expect field.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := loadKB(cmd.Context(), opts, log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			plan, err := LoadPlanFile(opts.plan)
			if err != nil {
				return err
			}
			results, err := Replay(cmd.Context(), kb, plan)
			if err != nil {
				return err
			}
			if failed := printResults(cmd.OutOrStdout(), results); failed > 0 {
				return fmt.Errorf("%d plan step(s) did not match expectations", failed)
			}
			return nil
		},
	}
	checkCmd.Flags().StringVar(&opts.plan, "plan", "configs/plan.yaml", "Lock plan (YAML)")

	rangesCmd := &cobra.Command{
		Use:   "ranges",
		Short: "Print the feasible range of every parameter",
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := loadKB(cmd.Context(), opts, log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			radios := kb.ListRadios()
			if opts.radio != "" {
				r, err := kb.GetRadio(opts.radio)
				if err != nil {
					return err
				}
				radios = []*core.Radio{r}
			}
			printRanges(cmd.OutOrStdout(), radios)
			return nil
		},
	}
	rangesCmd.Flags().StringVar(&opts.radio, "radio", "", "Only print this radio")

	root.AddCommand(checkCmd, rangesCmd)
	return root
}

func main() {
	log := logging.NewFromEnv()
	ctx := context.Background()

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv("emulator"), log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tracing:", err)
		os.Exit(1)
	}

	err = newRootCmd(log).ExecuteContext(ctx)
	observability.ShutdownWithTimeout(ctx, shutdown, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadKB(ctx context.Context, opts *options, log logging.Logger, stderr io.Writer) (*core.KnowledgeBase, error) {
	kb := core.NewKnowledgeBase(core.WithRadioDefaults(func(string) []core.RadioOption {
		radioOpts := []core.RadioOption{core.WithRadioLogger(log)}
		if opts.maxIterations > 0 {
			radioOpts = append(radioOpts, core.WithMaxIterations(opts.maxIterations))
		}
		return radioOpts
	}))

	profile, err := core.LoadProfileFile(ctx, kb, opts.profile)
	if err != nil {
		return nil, err
	}
	for _, r := range profile.Rejected {
		fmt.Fprintf(stderr, "initial lock rejected: %s\n", r)
	}
	return kb, nil
}

// printResults writes one row per step and returns how many steps missed
// their expectation.
func printResults(w io.Writer, results []StepResult) int {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tRADIO\tACTION\tOUTCOME\tDETAIL")
	failed := 0
	for _, r := range results {
		outcome := r.Outcome
		if !r.Matched() {
			failed++
			outcome = fmt.Sprintf("%s (expected %s)", r.Outcome, r.Step.Expect)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.Index, r.Step.Radio, r.Step.Action, outcome, r.Detail)
	}
	_ = tw.Flush()
	return failed
}

func printRanges(w io.Writer, radios []*core.Radio) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RADIO\tPARAM\tKIND\tRANGE\tLOCKED")
	for _, r := range radios {
		locked := make(map[string]bool)
		for _, l := range r.Locks() {
			locked[l.Param] = true
		}
		for _, p := range r.Params() {
			region, err := r.Ranges(p)
			if err != nil {
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", r.ID, p, region.Kind(), region, locked[p])
		}
	}
	_ = tw.Flush()
}
