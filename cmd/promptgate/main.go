package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "promptgate",
	Short: "Promptgate — LLM Admission Gateway",
	Long:  "Promptgate is a policy gateway that sits between AI agents and an LLM provider, enforcing authentication, rate limits, spend budgets, prompt-injection screening, and PII redaction, with a full audit trail of every admission decision.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/promptgate.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
