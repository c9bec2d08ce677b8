package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [user]",
	Short: "List recent imports from the event log",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		source, _ := cmd.Flags().GetString("source")

		e, err := setup(cmd, nil)
		if err != nil {
			return err
		}
		defer e.close()

		if e.store == nil {
			return fmt.Errorf("event log unavailable")
		}

		user := ""
		if len(args) == 1 {
			user = args[0]
		}
		events, err := e.app.History(cmd.Context(), user, limit)
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}

		if len(events) == 0 {
			fmt.Println("No imports found.")
			return nil
		}

		fmt.Printf("%-5s  %-19s  %-16s  %-9s  %-14s  %-6s  %s\n",
			"SEQ", "Timestamp", "User", "Source", "Strategy", "Found", "Added")
		fmt.Println(strings.Repeat("─", 86))

		for _, ev := range events {
			if source != "" && ev.Source != source {
				continue
			}
			u := ev.UserID
			if len(u) > 16 {
				u = u[:16]
			}
			fmt.Printf("%-5d  %-19s  %-16s  %-9s  %-14s  %-6d  %d\n",
				ev.Sequence,
				ev.Timestamp.Local().Format("2006-01-02 15:04:05"),
				u,
				ev.Source,
				ev.Strategy,
				ev.Found,
				ev.Added,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of events to show")
	historyCmd.Flags().String("source", "", "Only show this source (manual, file, sharecode)")
}
