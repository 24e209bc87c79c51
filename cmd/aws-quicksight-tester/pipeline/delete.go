package pipeline

import (
	"fmt"
	"os"

	"github.com/aws/aws-quicksight-tester/pkg/fileutil"
	"github.com/aws/aws-quicksight-tester/qsconfig"
	"github.com/aws/aws-quicksight-tester/quicksight"
	"github.com/manifoldco/promptui"
	"github.com/mitchellh/colorstring"
	"github.com/spf13/cobra"
)

func newDelete() *cobra.Command {
	ac := &cobra.Command{
		Use:   "delete <subcommand>",
		Short: "Delete commands",
	}
	ac.AddCommand(newDeleteDashboard())
	return ac
}

func newDeleteDashboard() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Delete the sales analytics pipeline resources",
		Run:   deleteDashboardFunc,
	}
}

func deleteDashboardFunc(cmd *cobra.Command, args []string) {
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

	if enablePrompt {
		prompt := promptui.Select{
			Label: "Ready to delete pipeline resources, should we continue?",
			Items: []string{
				"No, cancel it!",
				"Yes, let's delete!",
			},
		}
		idx, answer, err := prompt.Run()
		if err != nil {
			panic(err)
		}
		if idx != 1 {
			fmt.Printf("returning 'delete' [index %d, answer %q]\n", idx, answer)
			return
		}
	}

	tester, err := quicksight.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pipeline tester %v\n", err)
		os.Exit(1)
	}

	if err = tester.Down(); err != nil {
		colorstring.Printf("\n\n[red][bold]'aws-quicksight-tester pipeline delete dashboard' fail[default] %v\n\n\n", err)
		os.Exit(1)
	}

	colorstring.Printf("\n\n[light_blue][bold]'aws-quicksight-tester pipeline delete dashboard' success[default]\n\n\n")
}
