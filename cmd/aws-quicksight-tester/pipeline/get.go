package pipeline

import (
	"fmt"
	"os"

	"github.com/aws/aws-quicksight-tester/pkg/fileutil"
	"github.com/aws/aws-quicksight-tester/qsconfig"
	"github.com/aws/aws-quicksight-tester/quicksight"
	"github.com/spf13/cobra"
)

func newGet() *cobra.Command {
	ac := &cobra.Command{
		Use:   "get <subcommand>",
		Short: "Get commands",
	}
	ac.AddCommand(newGetEmbedURL())
	return ac
}

func newGetEmbedURL() *cobra.Command {
	return &cobra.Command{
		Use:   "embed-url",
		Short: "Get a fresh embed URL for the published dashboard",
		Run:   getEmbedURLFunc,
	}
}

func getEmbedURLFunc(cmd *cobra.Command, args []string) {
	if !fileutil.Exist(path) {
		fmt.Fprintf(os.Stderr, "cannot find configuration %q\n", path)
		os.Exit(1)
	}

	cfg, err := qsconfig.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration %q (%v)\n", path, err)
		os.Exit(1)
	}
	applyFlagOverrides(cfg)

	tester, err := quicksight.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pipeline tester %v\n", err)
		os.Exit(1)
	}

	url, err := tester.EmbedURL()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get embed URL %v\n", err)
		os.Exit(1)
	}
	fmt.Println(url)
}
