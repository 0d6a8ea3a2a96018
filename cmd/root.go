/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"mealsnap/pkg/config"
	"mealsnap/pkg/credentials"
	"mealsnap/pkg/engine"
	"mealsnap/pkg/provider"
	"mealsnap/pkg/usage"
	usagesqlite "mealsnap/pkg/usage/sqlite"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mealsnap",
	Short: "Analyze meal photos into nutrition data",
	Long:  "MealSnap turns a meal photograph into structured nutrition data by orchestrating interchangeable vision providers under daily cost ceilings.",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// buildEngine assembles the engine with its file-backed credential store and
// SQLite usage ledger. The returned cleanup closes the ledger database.
func buildEngine(cfg *config.Config) (*engine.Engine, func(), error) {
	creds, err := credentials.NewFileStore(cfg.Storage.CredentialsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open credential store: %w", err)
	}

	store, err := usagesqlite.Open(cfg.Storage.UsageDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open usage store: %w", err)
	}

	ledger := usage.NewLedger(store)
	registry := provider.NewRegistry(cfg, creds)

	eng, err := engine.New(registry, ledger, creds, nil)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		_ = store.Close()
	}
	return eng, cleanup, nil
}
