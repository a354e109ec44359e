package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nenet-io/nenet-core/pkg/audit"
	"github.com/nenet-io/nenet-core/pkg/cli"
)

var auditPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&auditPath, "audit-log", "logs/audit.jsonl", "path to the audit log")
	auditCmd.AddCommand(auditListCmd)
	rootCmd.AddCommand(auditCmd)
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the mutation audit log",
}

var (
	auditPrincipal  string
	auditController string
	auditOperation  string
	auditLast       string
	auditLimit      int
	auditFailures   bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := audit.NewFileLogger(auditPath, audit.RotationConfig{})
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer logger.Close()

		filter := audit.Filter{
			Principal:   auditPrincipal,
			Controller:  auditController,
			Operation:   auditOperation,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
		}
		if auditLast != "" {
			d, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", auditLast, err)
			}
			filter.StartTime = time.Now().Add(-d)
		}

		events, err := logger.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		table := cli.NewTable("TIMESTAMP", "PRINCIPAL", "CONTROLLER", "OPERATION", "MD_ID", "STATUS")
		for _, e := range events {
			status := "ok"
			if !e.Success {
				status = "FAIL: " + e.Error
			}
			table.Row(
				e.Timestamp.Format(time.RFC3339),
				e.Principal,
				e.Controller,
				e.Operation,
				fmt.Sprintf("%d", e.MDID),
				status,
			)
		}
		table.Flush()
		return nil
	},
}

func init() {
	auditListCmd.Flags().StringVar(&auditPrincipal, "principal", "", "filter by principal (ip:port, \"nec\", or a JF plate station name)")
	auditListCmd.Flags().StringVar(&auditController, "controller", "", "filter by JF plate controller name")
	auditListCmd.Flags().StringVar(&auditOperation, "operation", "", "filter by operation name")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "only events within this duration (e.g. 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 0, "maximum number of events to print")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "only show failed operations")
}
