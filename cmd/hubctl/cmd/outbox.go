package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/collabhub/internal/models"
)

var (
	outboxStatus string
	outboxLimit  int
	outboxID     string
	outboxAll    bool
)

// outboxCmd represents the outbox command group
var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and retry pending notification deliveries",
}

var outboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List outbox events, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status := models.OutboxStatus(outboxStatus)
		switch status {
		case "", models.OutboxPending, models.OutboxLeased, models.OutboxProcessed, models.OutboxFailed:
		default:
			return fmt.Errorf("invalid status: %s (use: pending, leased, processed, failed)", outboxStatus)
		}

		store, err := openDatabase(dbPath, false)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		events, err := store.Outbox().List(ctx, status, outboxLimit)
		if err != nil {
			return fmt.Errorf("list outbox: %w", err)
		}

		out := cmd.OutOrStdout()
		if output == "json" {
			if events == nil {
				events = []*models.OutboxEvent{}
			}
			return printJSON(out, events)
		}

		counts, err := store.Outbox().CountByStatus(ctx)
		if err != nil {
			return fmt.Errorf("count outbox: %w", err)
		}
		fmt.Fprintf(out, "pending=%d leased=%d processed=%d failed=%d\n\n",
			counts[models.OutboxPending], counts[models.OutboxLeased],
			counts[models.OutboxProcessed], counts[models.OutboxFailed])
		if len(events) == 0 {
			fmt.Fprintln(out, "No events found.")
			return nil
		}

		w := newTable(out)
		fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tATTEMPTS\tCREATED\tLAST ERROR")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				e.ID, e.EventType, e.Status, e.AttemptCount,
				e.CreatedAt.Format("2006-01-02 15:04:05"), truncate(e.LastError, 40))
		}
		return w.Flush()
	},
}

var outboxRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Requeue failed events",
	Long: `Reset failed events to pending so a running server delivers them again.

Examples:
  hubctl outbox retry --id 550e8400-e29b-41d4-a716-446655440000
  hubctl outbox retry --all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if outboxID == "" && !outboxAll {
			return fmt.Errorf("--id or --all is required")
		}

		store, err := openDatabase(dbPath, false)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		ids := []string{outboxID}
		if outboxAll {
			failed, err := store.Outbox().List(ctx, models.OutboxFailed, 1000)
			if err != nil {
				return fmt.Errorf("list failed events: %w", err)
			}
			ids = ids[:0]
			for _, e := range failed {
				ids = append(ids, e.ID)
			}
		}

		now := time.Now()
		requeued := 0
		for _, id := range ids {
			ok, err := store.Outbox().Requeue(ctx, id, now)
			if err != nil {
				return fmt.Errorf("requeue %s: %w", id, err)
			}
			if !ok {
				printVerbose(cmd, "skipped %s: not in failed state", id)
				continue
			}
			requeued++
		}
		if outboxID != "" && !outboxAll && requeued == 0 {
			return fmt.Errorf("event %s not found or not failed", outboxID)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d event(s).\n", requeued)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(outboxCmd)
	outboxCmd.AddCommand(outboxListCmd)
	outboxCmd.AddCommand(outboxRetryCmd)

	outboxListCmd.Flags().StringVar(&outboxStatus, "status", "", "filter by status")
	outboxListCmd.Flags().IntVar(&outboxLimit, "limit", 50, "maximum events to show")
	outboxRetryCmd.Flags().StringVar(&outboxID, "id", "", "event ID to requeue")
	outboxRetryCmd.Flags().BoolVar(&outboxAll, "all", false, "requeue every failed event")
}
