package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "linqpipe",
	Short: "linqpipe — translate LINQ-style query expressions into MongoDB aggregation pipelines",
	Long:  "A translator from a typed LINQ-style expression tree to a MongoDB aggregation pipeline, plus tooling for inspecting and migrating pipelines built by hand.",
}

func init() {
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	l, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger = l
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}
