package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mCat-0/mCat-ac/internal/config"
	"github.com/mCat-0/mCat-ac/internal/selfupdate"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check for a newer release",
	Long: "Checks GitHub for a newer release. With --download, the release archive for this " +
		"platform is fetched and checksum-verified; installing it is left to the host.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("download")

		cfg, err := loadConfig(cmd)
		if err != nil {
			cfg = config.Default()
		}
		checker := selfupdate.NewChecker(
			selfupdate.WithTimeout(2*time.Minute),
			selfupdate.WithRepo(cfg.Update.Repo),
		)

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		if dir == "" {
			res, err := checker.Check(ctx, &selfupdate.CheckInput{Version: version})
			if err != nil {
				return updateError(err)
			}
			if !res.UpdateAvailable {
				fmt.Printf("Already running the latest version (%s).\n", version)
				return nil
			}
			fmt.Printf("Version %s is available (running %s).\n", res.LatestVersion, version)
			if res.ReleaseURL != "" {
				fmt.Println(res.ReleaseURL)
			}
			return nil
		}

		_, err = checker.Download(ctx, &selfupdate.DownloadInput{
			CurrentVersion: version,
			Dir:            dir,
		}, func(p selfupdate.DownloadProgress) {
			fmt.Println(p.Message)
		})
		return updateError(err)
	},
}

func init() {
	updateCmd.Flags().String("download", "", "Download the verified release archive into this directory")
}

func updateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, selfupdate.ErrDevBuild):
		fmt.Println("Cannot update a development build. Install a release build first.")
		return nil
	case errors.Is(err, selfupdate.ErrAlreadyLatest):
		fmt.Println("Already running the latest version.")
		return nil
	case errors.Is(err, selfupdate.ErrNoRelease):
		fmt.Println("No release has been published yet.")
		return nil
	}
	return err
}
