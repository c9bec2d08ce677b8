package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mCat-0/mCat-ac/internal/render"
)

var checkCmd = &cobra.Command{
	Use:   "check <user>",
	Short: "List achievements the user has not completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		size, _ := cmd.Flags().GetInt("size")

		e, err := setup(cmd, nil)
		if err != nil {
			return err
		}
		defer e.close()

		if size <= 0 {
			size = e.cfg.Render.PageSize
		}

		res, err := e.app.CheckProgress(cmd.Context(), args[0])
		if err != nil {
			return friendly(e, err)
		}
		fmt.Print(render.Text(res, page, size, e.app.Resolver().Label))
		return nil
	},
}

func init() {
	checkCmd.Flags().Int("page", 1, "Page to show")
	checkCmd.Flags().Int("size", 0, "Items per page (default: render.page_size)")
}
