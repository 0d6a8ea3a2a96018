/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"mealsnap/pkg/config"
	"mealsnap/pkg/logger"
	providertypes "mealsnap/pkg/provider/types"

	"github.com/spf13/cobra"
)

var analyzeProvider string

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <image-file>",
	Short: "Analyze a meal photo",
	Long:  "Loads MealSnap configuration, sends the photo to the selected provider, and prints the estimated nutrition content.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
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
		log := slog.Default().With("component", "cmd.analyze")

		image, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Printf("failed to read image: %v\n", err)
			return
		}

		eng, cleanup, err := buildEngine(cfg)
		if err != nil {
			log.Error("Failed to initialize engine", "error", err)
			return
		}
		defer cleanup()

		profile := cfg.Profile
		if analyzeProvider != "" {
			profile.SelectedProvider = providertypes.Provider(analyzeProvider)
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		analysis, err := eng.Analyze(runCtx, image, profile)
		if err != nil {
			fmt.Println(renderError(err))
			os.Exit(1)
		}

		fmt.Println(renderResult(analysis))
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&analyzeProvider, "provider", "p", "", "override the profile's selected provider")
}
