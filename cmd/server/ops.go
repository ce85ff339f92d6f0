package main

import (
	"context"
	"fmt"

	"donationpay/internal/job"
	"donationpay/internal/service"

	"github.com/spf13/cobra"
)

func auditCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Compare each campaign's collected amount with its paid donations",
		Long: `Compare each campaign's cached collected amount with the sum of its paid
donations and list every campaign where the two differ.

With --repair the cached amount is overwritten with the derived sum.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := bootstrap()
			if err != nil {
				return err
			}

			reports, err := service.NewCampaignService(db).AuditAll(context.Background(), repair)
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				fmt.Println("no drift found")
				return nil
			}
			for _, r := range reports {
				fmt.Printf("%s\tcached=%s\tderived=%s\tdrift=%s\trepaired=%t\n",
					r.CampaignID, r.Cached.StringFixed(2), r.Derived.StringFixed(2), r.Drift.StringFixed(2), r.Repaired)
			}
			if !repair {
				return fmt.Errorf("%d campaign(s) drifted; rerun with --repair to fix", len(reports))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "overwrite drifted totals with the derived sum")
	return cmd
}

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and repair the event outbox",
	}

	var limit int
	requeue := &cobra.Command{
		Use:   "requeue",
		Short: "Give FAILED outbox messages a fresh retry budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}
			// Requeueing only touches rows; the running server publishes them.
			n, err := job.NewOutboxSender(db, nil, cfg).RequeueFailed(context.Background(), limit)
			if err != nil {
				return err
			}
			fmt.Printf("requeued %d message(s)\n", n)
			return nil
		},
	}
	requeue.Flags().IntVar(&limit, "limit", 1000, "maximum messages to requeue")

	cmd.AddCommand(requeue)
	return cmd
}
