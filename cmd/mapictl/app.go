package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"aigcpanel/internal/mapi"
)

func init() {
	rootCmd.AddCommand(cmdActivate, cmdQuit, cmdEnv, cmdInfo, cmdNamespaces, cmdLogs)
	cmdLogs.Flags().IntVarP(&logsLimit, "limit", "n", 50, "number of entries")
}

var logsLimit int

var cmdActivate = &cobra.Command{
	Use:   "activate",
	Short: "Show and raise the application window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *mapi.Client) error {
			return c.App.Activate(ctx)
		})
	},
}

var cmdQuit = &cobra.Command{
	Use:   "quit",
	Short: "Quit the application",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *mapi.Client) error {
			return c.App.Quit(ctx)
		})
	},
}

var cmdEnv = &cobra.Command{
	Use:   "env",
	Short: "Print the application directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *mapi.Client) error {
			env, err := c.App.Env(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "appRoot=%s\n", env.AppRoot)
			fmt.Fprintf(w, "appData=%s\n", env.AppData)
			fmt.Fprintf(w, "userData=%s\n", env.UserData)
			fmt.Fprintf(w, "isInit=%t\n", env.IsInit)
			return nil
		})
	},
}

var cmdInfo = &cobra.Command{
	Use:   "info",
	Short: "Print the application name, version and platform",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *mapi.Client) error {
			info, err := c.App.Info(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s/%s)\n", info.Name, info.Version, info.Platform, info.Arch)
			return nil
		})
	},
}

var cmdNamespaces = &cobra.Command{
	Use:   "namespaces",
	Short: "List the published namespaces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *mapi.Client) error {
			names, err := c.Namespaces(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		})
	},
}

var cmdLogs = &cobra.Command{
	Use:   "logs",
	Short: "Print recent captured log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *mapi.Client) error {
			entries, err := c.Log.Recent(ctx, logsLimit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-5s %s\n", e.Time.Format("15:04:05.000"), e.Level, e.Message)
			}
			return nil
		})
	},
}
