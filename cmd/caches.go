package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/labstack/gommon/bytes"
	"github.com/spf13/cobra"
)

var cachesCmd = &cobra.Command{
	Use:   "caches",
	Short: "Inspect and clean cache stores",
}

var cachesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cache stores with entry counts and sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := e.storage().Stats(cmd.Context())
		if err != nil {
			return err
		}
		active := ""
		if v, err := e.versions().GetActive(cmd.Context()); err == nil {
			active = v.CacheName
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tENTRIES\tSIZE\t")
		for _, s := range stats {
			name := s.Name
			if name == active {
				name += " (active)"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t\n", name, s.Entries, bytes.Format(s.Bytes))
		}
		return w.Flush()
	},
}

var cachesPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete every cache store not owned by the active or waiting version",
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
		deleted, err := reg.PruneStale(ctx)
		if err != nil {
			return err
		}
		for _, name := range deleted {
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d cache store(s) deleted\n", len(deleted))
		return nil
	},
}

var cachesDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete one cache store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.Close()

		deleted, err := e.storage().Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("cache store %q not found", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

func init() {
	cachesCmd.AddCommand(cachesListCmd, cachesPruneCmd, cachesDeleteCmd)
	rootCmd.AddCommand(cachesCmd)
}
