package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	installName     string
	installManifest []string
	installActivate bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Download a cache version without starting the server",
	Long: `Fetches every manifest asset from the origin into a new cache store.
The store is written only when every asset downloaded successfully. With
--activate a version left waiting is promoted immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.Close()

		reg, err := e.registration(e.storage(), nil, nil)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		defer func() { _ = reg.Close(context.WithoutCancel(ctx)) }()

		if err := restore(ctx, reg); err != nil {
			return err
		}

		version := e.configuredVersion()
		if installName != "" {
			version.CacheName = installName
		}
		if len(installManifest) > 0 {
			version.Manifest = installManifest
		}

		w, err := reg.Register(ctx, version)
		if err != nil {
			return err
		}
		if installActivate && reg.Waiting() != nil {
			if w, err = reg.SkipWaiting(ctx); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %s (%d assets)\n", w.Version().CacheName, w.State(), len(w.Version().Manifest))
		return nil
	},
}

func init() {
	installCmd.Flags().StringVar(&installName, "name", "", "cache version to install (default from config)")
	installCmd.Flags().StringSliceVar(&installManifest, "manifest", nil, "asset paths to pre-cache (default from config)")
	installCmd.Flags().BoolVar(&installActivate, "activate", false, "activate the version if it is left waiting")
	rootCmd.AddCommand(installCmd)
}
