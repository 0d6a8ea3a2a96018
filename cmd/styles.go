/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	providertypes "mealsnap/pkg/provider/types"
	"mealsnap/pkg/usage"
)

// theme groups reusable styles for CLI output.
type theme struct {
	resultBox   lipgloss.Style
	resultTitle lipgloss.Style
	label       lipgloss.Style
	value       lipgloss.Style
	meta        lipgloss.Style
	errorBox    lipgloss.Style
	errorTitle  lipgloss.Style
	usageHeader lipgloss.Style
	usageRow    lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		resultBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("114")).
			Padding(0, 1),
		resultTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("114")).
			Padding(0, 1),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),
		meta: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		errorBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("203")).
			Foreground(lipgloss.Color("203")).
			Padding(0, 1),
		errorTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")).
			Padding(0, 1),
		usageHeader: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")),
		usageRow: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
	}
}

func renderResult(analysis providertypes.AnalysisResult) string {
	t := defaultTheme()

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n\n", t.value.Render(analysis.Name), t.meta.Render(string(analysis.Provider)))
	fmt.Fprintf(&b, "%s\n\n", analysis.Description)
	fmt.Fprintf(&b, "%s %s kcal   %s %sg   %s %sg   %s %sg\n",
		t.label.Render("energy"), t.value.Render(analysis.Energy.String()),
		t.label.Render("protein"), t.value.Render(analysis.Protein.String()),
		t.label.Render("fat"), t.value.Render(analysis.Fat.String()),
		t.label.Render("carbs"), t.value.Render(analysis.Carbohydrate.String()),
	)
	fmt.Fprintf(&b, "%s %.0f%%", t.label.Render("confidence"), analysis.Confidence*100)

	return t.resultTitle.Render("Analysis") + "\n" + t.resultBox.Render(b.String())
}

func renderError(err error) string {
	t := defaultTheme()
	kind := providertypes.KindOf(err)
	return t.errorTitle.Render("Error") + "\n" + t.errorBox.Render(fmt.Sprintf("%s (%s)", err, kind))
}

func renderUsageHeader(maxDailyCost decimal.Decimal) string {
	t := defaultTheme()
	return t.usageHeader.Render(fmt.Sprintf("Today's usage (ceiling %s)", maxDailyCost.String()))
}

func renderUsageRow(p providertypes.Provider, entry usage.Entry, configured bool) string {
	t := defaultTheme()
	state := "configured"
	if !configured {
		state = "no key"
	}
	return t.usageRow.Render(fmt.Sprintf("%-10s %3d requests   %s spent   %s",
		p, entry.RequestCount, entry.TotalCost.String(), t.meta.Render(state)))
}
