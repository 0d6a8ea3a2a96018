/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"mealsnap/pkg/config"
	"mealsnap/pkg/engine"
	"mealsnap/pkg/logger"
	providertypes "mealsnap/pkg/provider/types"

	"github.com/spf13/cobra"
)

// providerCmd represents the provider command
var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Manage analysis providers",
}

var providerConfigureCmd = &cobra.Command{
	Use:   "configure <provider> <api-key>",
	Short: "Store an API key for a provider",
	Long:  "Validates the key format, stores it in the credential file, and runs a connectivity test before returning.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		withEngine(func(eng *engine.Engine, cfg *config.Config) {
			p := providertypes.Provider(args[0])
			ok, err := eng.ConfigureProviderSync(context.Background(), p, args[1])
			if err != nil {
				// A network-kind error means the key was stored but the
				// test could not run; anything else stored nothing.
				if providertypes.KindOf(err) != providertypes.KindNetworkError {
					fmt.Println(renderError(err))
					return
				}
				fmt.Printf("stored API key for %s\n", p)
				fmt.Printf("connectivity test failed: %v\n", err)
				return
			}

			fmt.Printf("stored API key for %s\n", p)
			if ok {
				fmt.Println("connectivity test passed")
				return
			}
			fmt.Println("connectivity test rejected the key; it remains stored")
		})
	},
}

var providerTestCmd = &cobra.Command{
	Use:   "test <provider>",
	Short: "Run a connectivity test against a provider",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withEngine(func(eng *engine.Engine, cfg *config.Config) {
			p := providertypes.Provider(args[0])
			ok, err := eng.TestProvider(context.Background(), p)
			if err != nil {
				fmt.Println(renderError(err))
				return
			}
			if ok {
				fmt.Printf("%s: connection ok\n", p)
				return
			}
			fmt.Printf("%s: connection rejected\n", p)
		})
	},
}

var providerUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show today's per-provider spend",
	Run: func(cmd *cobra.Command, args []string) {
		withEngine(func(eng *engine.Engine, cfg *config.Config) {
			preferences := cfg.Profile.Preferences.WithDefaults()
			fmt.Println(renderUsageHeader(preferences.MaxDailyCost))
			for _, p := range providertypes.All() {
				entry, err := eng.DailyUsage(p)
				if err != nil {
					fmt.Println(renderError(err))
					return
				}
				fmt.Println(renderUsageRow(p, entry, eng.IsProviderConfigured(p)))
			}
		})
	},
}

func withEngine(run func(eng *engine.Engine, cfg *config.Config)) {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		return
	}

	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		return
	}
	slog.SetDefault(appLogger)

	eng, cleanup, err := buildEngine(cfg)
	if err != nil {
		fmt.Printf("failed to initialize engine: %v\n", err)
		return
	}
	defer cleanup()

	run(eng, cfg)
}

func init() {
	rootCmd.AddCommand(providerCmd)
	providerCmd.AddCommand(providerConfigureCmd)
	providerCmd.AddCommand(providerTestCmd)
	providerCmd.AddCommand(providerUsageCmd)
}
