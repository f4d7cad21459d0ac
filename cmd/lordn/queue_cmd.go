package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/velmie/lordn"
)

func newEnqueueCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue [line...]",
		Short: "Queue LORDN lines for one TLD, read from arguments or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			lines := args
			if len(lines) == 0 {
				var err error
				lines, err = readLines(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}

			return a.runEnqueue(cmd.Context(), cmd.OutOrStdout(), lines)
		},
	}

	flags := cmd.Flags()
	flags.StringSlice("tld", nil, "TLD the lines belong to")
	flags.String("phase", string(lordn.PhaseClaims), "queue phase: claims or sunrise")

	return cmd
}

func (a *app) runEnqueue(ctx context.Context, out io.Writer, lines []string) error {
	phase, err := a.phase()
	if err != nil {
		return err
	}
	tags, err := a.tags()
	if err != nil {
		return err
	}
	if len(tags) != 1 {
		return fmt.Errorf("enqueue takes exactly one tld, got %d", len(tags))
	}

	b, err := a.open(ctx, a.storeSettings(), a.logger)
	if err != nil {
		return err
	}
	defer b.Close()

	queued := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, err := b.queue.Enqueue(ctx, phase.Queue(), lordn.Entry{Tag: tags[0], Payload: []byte(line)}); err != nil {
			return fmt.Errorf("enqueue line %d: %w", queued+1, err)
		}
		queued++
	}
	a.logger.Info("lordn lines queued", "tld", tags[0], "phase", phase, "count", queued)
	fmt.Fprintf(out, "queued %d lines\n", queued)

	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}

	return lines, nil
}

func newStatusCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the number of queued lines per TLD and phase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runStatus(cmd.Context(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringSlice("tld", nil, "TLD to report (repeatable)")
	flags.String("phase", "", "limit to one phase: claims or sunrise")

	return cmd
}

func (a *app) runStatus(ctx context.Context, out io.Writer) error {
	phases := []lordn.Phase{lordn.PhaseClaims, lordn.PhaseSunrise}
	if strings.TrimSpace(a.v.GetString("phase")) != "" {
		phase, err := a.phase()
		if err != nil {
			return err
		}
		phases = []lordn.Phase{phase}
	}
	tags, err := a.tags()
	if err != nil {
		return err
	}

	b, err := a.open(ctx, a.storeSettings(), a.logger)
	if err != nil {
		return err
	}
	defer b.Close()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TLD\tPHASE\tPENDING")
	for _, tag := range tags {
		for _, phase := range phases {
			count, err := b.queue.PendingCount(ctx, phase.Queue(), tag)
			if err != nil {
				return fmt.Errorf("count %s %s: %w", tag, phase, err)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\n", tag, phase, count)
		}
	}

	return tw.Flush()
}
