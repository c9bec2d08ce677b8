package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mCat-0/mCat-ac/internal/catalog"
	"github.com/mCat-0/mCat-ac/internal/render"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the local achievement catalog",
}

var catalogRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Download category files and rebuild the manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		e, err := setup(cmd, nil)
		if err != nil {
			return err
		}
		defer e.close()

		report, err := e.app.RefreshCatalog(cmd.Context(), force)
		if report != nil {
			printRefresh(report)
		}
		return friendly(e, err)
	},
}

var catalogStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the local catalog contains",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, nil)
		if err != nil {
			return err
		}
		defer e.close()

		snap, err := e.app.Catalog().Snapshot()
		if err != nil {
			return friendly(e, err)
		}

		fmt.Println(render.Title.Render(fmt.Sprintf("%d achievements in %d categories", len(snap.Achievements), len(snap.Manifest.Categories))))
		if snap.Manifest.LastUpdated != "" {
			fmt.Println(render.Subtitle.Render("updated " + snap.Manifest.LastUpdated))
		}
		fmt.Printf("%-36s  %-28s  %s\n", "FILE", "CATEGORY", "COUNT")
		fmt.Println(strings.Repeat("─", 74))
		for _, c := range snap.Manifest.Categories {
			fmt.Printf("%-36s  %-28s  %d\n", c.FileName, c.Name, c.AchievementCount)
		}
		for _, name := range snap.Report.Missing {
			fmt.Println(render.Bad.Render("missing: ") + name)
		}
		for _, name := range snap.Report.Invalid {
			fmt.Println(render.Bad.Render("unreadable: ") + name)
		}
		return nil
	},
}

func init() {
	catalogRefreshCmd.Flags().Bool("force", false, "Delete local category files before downloading")

	catalogCmd.AddCommand(catalogRefreshCmd)
	catalogCmd.AddCommand(catalogStatusCmd)
}

func printRefresh(r *catalog.RefreshReport) {
	source := "remote list"
	if r.UsedFallback {
		source = "built-in list"
	}
	fmt.Printf("%d files from the %s: %d downloaded, %d already current, %d failed\n",
		len(r.Remote), source, len(r.Downloaded), len(r.Skipped), len(r.Failed))
	if r.Deleted > 0 {
		fmt.Printf("%d local files deleted first\n", r.Deleted)
	}
	for _, name := range r.Missing {
		fmt.Println(render.Bad.Render("missing: ") + name)
	}
	for _, name := range r.Invalid {
		fmt.Println(render.Bad.Render("invalid: ") + name)
	}
	for _, name := range r.Extra {
		fmt.Println(render.Hint.Render("extra: " + name))
	}
	status := render.Good.Render("complete")
	if !r.OK() {
		status = render.Bad.Render("incomplete")
	}
	fmt.Printf("%d achievements in %d categories, %s (%s)\n", r.TotalAchievements, r.Categories, status, r.Duration.Round(time.Millisecond))
}
