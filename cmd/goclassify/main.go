package main

import (
	"fmt"
	"os"

	"github.com/ignatij/goclassify/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "goclassify",
	Short: "Classify records with a language model, concurrently and resumably",
}

func main() {
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
