package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/velmie/lordn/mysql"
)

func newSchemaCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print or apply the MySQL queue and task table definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSchema(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().Bool("apply", false, "execute the statements against --dsn instead of printing them")

	return cmd
}

func (a *app) runSchema(ctx context.Context, out io.Writer) error {
	cfg := a.storeSettings()
	queue, err := mysql.Schema(cfg.QueueTable)
	if err != nil {
		return err
	}
	tasks, err := mysql.TaskSchema(cfg.TaskTable)
	if err != nil {
		return err
	}
	statements := []string{queue, tasks}

	if !a.v.GetBool("apply") {
		for _, stmt := range statements {
			fmt.Fprintf(out, "%s\n\n", stmt)
		}

		return nil
	}

	if cfg.DSN == "" {
		return errDSNRequired
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	a.logger.Info("lordn schema applied", "queue_table", cfg.QueueTable, "task_table", cfg.TaskTable)

	return nil
}
