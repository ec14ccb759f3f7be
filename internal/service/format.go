package service

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// formatNumber prints v without trailing zeros: 90 -> "90", 39.2 -> "39.2".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatPercent prints a probability as a one-decimal percentage: 0.85 -> "85.0%".
func formatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}

// displayName turns a finding key into a title: "pulmonary_edema" -> "Pulmonary Edema".
func displayName(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))
}
