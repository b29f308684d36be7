package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the remote catalog manifest",
	Long: `Fetch the remote manifest, store it and report how many installed
catalogs have updates. A refresh within the minimum interval of the last one
is skipped unless --force is given.`,
	RunE: runRefresh,
}

var refreshForce bool

func init() {
	rootCmd.AddCommand(refreshCmd)
	refreshCmd.Flags().BoolVarP(&refreshForce, "force", "f", false, "refresh even if done recently")
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	list, err := a.Refresh(ctx, refreshForce)
	if err != nil {
		return err
	}

	updates := 0
	for _, c := range a.Registry().Installed() {
		if c.HasUpdate {
			updates++
		}
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d remote catalogs, %d updates available\n", len(list), updates)
	return nil
}
