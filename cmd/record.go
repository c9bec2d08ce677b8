package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mCat-0/mCat-ac/internal/render"
)

var recordCmd = &cobra.Command{
	Use:   "record <user> <id-or-name>...",
	Short: "Record completed achievements by ID, name, or name plus stage",
	Example: `  mcat-ac record 12345 84001 84002
  mcat-ac record 12345 天下宝藏3`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, nil)
		if err != nil {
			return err
		}
		defer e.close()

		res, err := e.app.RecordAchievements(cmd.Context(), args[0], args[1:])
		if err != nil {
			return friendly(e, err)
		}

		for _, it := range res.Recorded {
			line := fmt.Sprintf("%d %s", it.Achievement.ID, it.Achievement.Name)
			if it.Label != "" {
				line += " (" + it.Label + ")"
			}
			if it.Required > 0 {
				line += fmt.Sprintf(" +%d earlier stages", it.Required)
			}
			fmt.Println(render.Good.Render("✓ ") + line)
		}
		for _, it := range res.NotFound {
			line := fmt.Sprintf("%q not found", it.Token)
			if len(it.Suggestions) > 0 {
				line += fmt.Sprintf(", did you mean %v?", it.Suggestions)
			}
			fmt.Println(render.Bad.Render("✗ ") + line)
		}
		fmt.Println(render.Hint.Render(fmt.Sprintf("%d new, %d recorded in total", res.Merge.Added, res.Merge.Total)))
		return nil
	},
}
