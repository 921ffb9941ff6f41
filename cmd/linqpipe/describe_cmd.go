package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marrow-systems/linqpipe"
	"github.com/marrow-systems/linqpipe/generator"
)

var describeFile string

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Print the pseudo-source form of a legacy pipeline or filter (extended JSON)",
	Long:  "Reads a stored aggregation pipeline or filter document as extended JSON, builds the expr tree it denotes, and prints its short human-readable form — the same rendering an UnsupportedExpressionError carries.",
	RunE:  runDescribe,
}

func init() {
	describeCmd.Flags().StringVarP(&describeFile, "file", "f", "", "read input from a file instead of stdin")
}

func runDescribe(cmd *cobra.Command, args []string) error {
	var input []byte
	var err error
	if describeFile != "" {
		input, err = os.ReadFile(describeFile)
	} else {
		input, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	str := strings.TrimSpace(string(input))
	if strings.HasPrefix(str, "[") {
		pipeline, err := generator.BuildLegacyPipeline(str)
		if err != nil {
			logger.Warn("describe failed", zap.Error(err))
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), linqpipe.Describe(pipeline))
		return nil
	}

	e, err := generator.BuildLegacyExpression(str)
	if err != nil {
		logger.Warn("describe failed", zap.Error(err))
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), linqpipe.Describe(e))
	return nil
}
