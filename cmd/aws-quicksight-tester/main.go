// aws-quicksight-tester is a set of AWS QuickSight pipeline commands.
package main

import (
	"fmt"
	"os"

	"github.com/aws/aws-quicksight-tester/cmd/aws-quicksight-tester/pipeline"
	"github.com/aws/aws-quicksight-tester/cmd/aws-quicksight-tester/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:        "aws-quicksight-tester",
	Short:      "AWS QuickSight pipeline CLI",
	SuggestFor: []string{"quicksight-tester", "qstester"},
}

func init() {
	cobra.EnablePrefixMatching = true
}

func init() {
	rootCmd.AddCommand(
		pipeline.NewCommand(),
		version.NewCommand(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "aws-quicksight-tester failed %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}
