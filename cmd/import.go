package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mCat-0/mCat-ac/internal/app"
)

var importCmd = &cobra.Command{
	Use:   "import <user>",
	Short: "Import achievements from an export file or a share code",
	Example: `  mcat-ac import 12345 --file export.json
  mcat-ac import 12345 --code Ab3dE6gH9`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		code, _ := cmd.Flags().GetString("code")
		if (file == "") == (code == "") {
			return errors.New("give exactly one of --file or --code")
		}

		e, err := setup(cmd, nil)
		if err != nil {
			return err
		}
		defer e.close()

		var res *app.ImportResult
		if file != "" {
			raw, rerr := os.ReadFile(file)
			if rerr != nil {
				return fmt.Errorf("read export: %w", rerr)
			}
			res, err = e.app.ImportPayload(cmd.Context(), args[0], raw, app.SourceFile)
		} else {
			res, err = e.app.ImportShareCode(cmd.Context(), args[0], code)
		}
		if err != nil {
			return friendly(e, err)
		}

		printImport(res)
		return nil
	},
}

func init() {
	importCmd.Flags().String("file", "", "Path to an achievement export JSON file")
	importCmd.Flags().String("code", "", "9-character share code")
}

func printImport(res *app.ImportResult) {
	fmt.Printf("Found %d achievements (%s), %d new, %d recorded in total.\n",
		res.Found, res.Strategy, res.Added, res.Total)
}
