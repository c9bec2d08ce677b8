package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mCat-0/mCat-ac/internal/app"
)

var messageCmd = &cobra.Command{
	Use:   "message <user> [text...]",
	Short: "Feed one chat message through the input dispatcher",
	Long: "Runs a chat message through the same dispatcher the HTTP bridge uses. " +
		"A share URL is always imported; with --awaiting, a bare share code or --file-url is accepted too.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileURL, _ := cmd.Flags().GetString("file-url")
		awaiting, _ := cmd.Flags().GetBool("awaiting")

		e, err := setup(cmd, nil)
		if err != nil {
			return err
		}
		defer e.close()

		if awaiting {
			if _, err := e.app.StartInput(args[0]); err != nil {
				return friendly(e, err)
			}
		}

		res, err := e.app.HandleMessage(cmd.Context(), app.Message{
			UserID:  args[0],
			Text:    strings.Join(args[1:], " "),
			FileURL: fileURL,
		})
		if err != nil {
			return friendly(e, err)
		}
		if !res.Handled {
			fmt.Println("Message ignored.")
			return nil
		}
		printImport(res.Import)
		return nil
	},
}

func init() {
	messageCmd.Flags().String("file-url", "", "URL of an uploaded export file")
	messageCmd.Flags().Bool("awaiting", false, "Treat the user as having started input")
}
