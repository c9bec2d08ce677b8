package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:   "debug [user]",
	Short: "Show catalog, event log and user diagnostics",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, nil)
		if err != nil {
			return err
		}
		defer e.close()

		user := ""
		if len(args) == 1 {
			user = args[0]
		}
		st, err := e.app.Status(cmd.Context(), user)
		if err != nil {
			return friendly(e, err)
		}

		fmt.Printf("Data dir:      %s\n", e.cfg.DataDir)
		fmt.Printf("Manifest:      %v\n", st.ManifestPresent)
		if st.CatalogLoaded {
			fmt.Printf("Catalog:       %d achievements, %d categories (cached %s)\n",
				st.Achievements, st.Categories, st.CachedAt.Local().Format(time.DateTime))
		} else {
			fmt.Printf("Catalog:       not loaded: %s\n", st.CatalogError)
		}
		if len(st.MissingFiles) > 0 {
			fmt.Printf("Missing files: %v\n", st.MissingFiles)
		}
		if len(st.InvalidFiles) > 0 {
			fmt.Printf("Invalid files: %v\n", st.InvalidFiles)
		}
		if r := st.LastRefresh; r != nil {
			fmt.Printf("Last refresh:  %s, %d downloaded, %d failed, forced=%v\n",
				r.Timestamp.Local().Format(time.DateTime), r.Downloaded, r.Failed, r.Forced)
			if r.ErrorMessage != "" {
				fmt.Printf("               error: %s\n", r.ErrorMessage)
			}
		} else {
			fmt.Println("Last refresh:  none recorded")
		}

		if u := st.User; u != nil {
			fmt.Println()
			fmt.Printf("User:          %s\n", u.UserID)
			if !u.HasRecord {
				fmt.Println("Record:        none")
				return nil
			}
			fmt.Printf("Completed:     %d\n", u.Completed)
			fmt.Printf("Last update:   %s\n", u.LastUpdate)
			for _, ev := range u.Recent {
				fmt.Printf("  %s  %-9s  +%d of %d\n", ev.Timestamp.Local().Format(time.DateTime), ev.Source, ev.Added, ev.Found)
			}
		}
		return nil
	},
}
