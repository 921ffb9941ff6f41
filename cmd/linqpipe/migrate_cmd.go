package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marrow-systems/linqpipe/generator"
)

var migrateFile string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Turn a legacy MongoDB pipeline or filter (extended JSON) into expr construction source",
	Long:  "Reads a stored aggregation pipeline or filter document as extended JSON and prints the Go source that builds the equivalent expr.Pipeline or expr.Expression, for retiring a hand-built query in favor of a typed front-end.",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVarP(&migrateFile, "file", "f", "", "read input from a file instead of stdin")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	var input []byte
	var err error
	if migrateFile != "" {
		input, err = os.ReadFile(migrateFile)
	} else {
		input, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	code, err := generator.Generate(string(input))
	if err != nil {
		logger.Warn("migration failed", zap.Error(err))
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), code)
	return nil
}
