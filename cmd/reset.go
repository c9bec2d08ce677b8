package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset <user>",
	Short: "Clear a user's recorded achievements",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, nil)
		if err != nil {
			return err
		}
		defer e.close()

		if err := e.app.ResetProgress(cmd.Context(), args[0]); err != nil {
			return friendly(e, err)
		}
		fmt.Println("Progress cleared.")
		return nil
	},
}
