package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/velmie/lordn"
)

const (
	defaultClaimLimit       = 100
	defaultCleanupRetention = 7 * 24 * time.Hour
)

type claimedTask struct {
	ID        string            `json:"id"`
	Queue     string            `json:"queue"`
	Action    string            `json:"action"`
	Service   string            `json:"service"`
	Params    map[string]string `json:"params"`
	RunAt     time.Time         `json:"run_at"`
	CreatedAt time.Time         `json:"created_at"`
}

func newClaimCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Mark due verify tasks dispatched and print them as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runClaim(cmd.Context(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.String("queue", lordn.VerifyQueue, "task queue to claim from")
	flags.Int("limit", defaultClaimLimit, "maximum tasks claimed")

	return cmd
}

func (a *app) runClaim(ctx context.Context, out io.Writer) error {
	b, err := a.open(ctx, a.storeSettings(), a.logger)
	if err != nil {
		return err
	}
	defer b.Close()

	tasks, err := b.tasks.ClaimDue(ctx, a.v.GetString("queue"), a.v.GetInt("limit"))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	for _, task := range tasks {
		if err := enc.Encode(claimedTask{
			ID:        task.ID.String(),
			Queue:     task.Task.Queue,
			Action:    task.Task.Action,
			Service:   task.Task.Service,
			Params:    task.Task.Params,
			RunAt:     task.RunAt.UTC(),
			CreatedAt: task.CreatedAt.UTC(),
		}); err != nil {
			return fmt.Errorf("write task: %w", err)
		}
	}
	if len(tasks) > 0 {
		a.logger.Info("lordn tasks claimed", "count", len(tasks))
	}

	return nil
}

func newCleanupCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete dispatched verify tasks older than the retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCleanup(cmd.Context(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.Duration("retention", defaultCleanupRetention, "keep dispatched tasks this long")
	flags.Int("limit", 0, "maximum tasks deleted per pass (0 uses default)")
	flags.Duration("every", 0, "repeat the cleanup at this interval until interrupted (0 runs once)")

	return cmd
}

func (a *app) runCleanup(ctx context.Context, out io.Writer) error {
	retention := a.v.GetDuration("retention")
	if retention <= 0 {
		return fmt.Errorf("retention must be positive, got %s", retention)
	}

	b, err := a.open(ctx, a.storeSettings(), a.logger)
	if err != nil {
		return err
	}
	defer b.Close()

	limit := a.v.GetInt("limit")
	every := a.v.GetDuration("every")
	if every <= 0 {
		removed, err := b.purge(ctx, retention, limit)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		fmt.Fprintf(out, "removed %d tasks\n", removed)

		return nil
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		removed, err := b.purge(ctx, retention, limit)
		switch {
		case err != nil:
			a.logger.Warn("lordn cleanup failed", "err", err)
		case removed > 0:
			a.logger.Info("lordn cleanup removed tasks", "tasks", removed)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
