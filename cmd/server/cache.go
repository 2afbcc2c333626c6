package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the offline question cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what is held for offline use",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			ctx := cmd.Context()
			return printJSON(cmd, map[string]any{
				"stats":        a.questionCache.OfflineStorageStats(ctx),
				"offlineMode":  a.questionCache.IsOfflineModeEnabled(ctx),
				"needsRefresh": a.questionCache.NeedsRefresh(ctx, a.cfg.Offline.RefreshMaxAge),
				"cached":       a.questionCache.CachedQuestionCount(ctx),
				"preloaded":    a.questionCache.PreloadedTopicKeys(ctx),
			})
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached questions, keeping the offline mode setting",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			if !a.questionCache.ClearAllCaches(cmd.Context()) {
				return fmt.Errorf("some caches could not be cleared")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "offline caches cleared")
			return nil
		})
	},
}

var cacheWarmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Load the question bank and store it for offline use",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			n, err := a.warm(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cached %d questions\n", n)
			return nil
		})
	},
}

var cacheImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Validate a question bank file and replace the cached questions with it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			n, err := a.questionCache.ImportQuestions(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d questions\n", n)
			return nil
		})
	},
}

var cacheOfflineCmd = &cobra.Command{
	Use:       "offline <on|off>",
	Short:     "Turn offline mode on or off",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[0] {
		case "on":
			enabled = true
		case "off":
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}
		return withApp(cmd, func(a *app) error {
			if !a.questionCache.SetOfflineMode(cmd.Context(), enabled) {
				return fmt.Errorf("offline mode could not be persisted")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "offline mode %s\n", args[0])
			return nil
		})
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheWarmCmd)
	cacheCmd.AddCommand(cacheImportCmd)
	cacheCmd.AddCommand(cacheOfflineCmd)
}

func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
