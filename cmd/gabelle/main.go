package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gabelle",
	Short: "Gabelle — Metered OCR Service",
	Long:  "Gabelle is the publisher-side backend for a metered SaaS OCR offer: it redeems marketplace purchase tokens into per-session billing context, runs document recognition, and records one pending usage record per billable recognition.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/gabelle.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
