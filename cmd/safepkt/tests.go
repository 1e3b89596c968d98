package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jward/safepkt"
)

var flagName string

var testsCmd = &cobra.Command{
	Use:   "tests [file]",
	Short: "List indexed tests",
	Long:  "Lists the tests recorded by discover, for one file or for the whole index.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTests,
}

func init() {
	testsCmd.Flags().StringVar(&flagName, "name", "", "only tests with this exact name")
}

func runTests(cmd *cobra.Command, args []string) error {
	repoRoot, err := workingRoot()
	if err != nil {
		return outputError("tests", err)
	}
	dbPath := resolveDBPath(repoRoot)
	if _, err := os.Stat(dbPath); err != nil {
		return outputError("tests", errNoIndex(dbPath))
	}

	engine, err := safepkt.New(dbPath, "", safepkt.WithLogger(zap.NewNop()))
	if err != nil {
		return outputError("tests", err)
	}
	defer engine.Close()
	q := engine.Query()

	var tests []CLITest
	switch {
	case len(args) > 0:
		path, err := filepath.Abs(args[0])
		if err != nil {
			return outputError("tests", err)
		}
		descs, err := q.TestsInFile(path)
		if err != nil {
			return outputError("tests", err)
		}
		for _, d := range descs {
			if flagName != "" && d.Name != flagName {
				continue
			}
			tests = append(tests, testToCLI(path, d))
		}
	case flagName != "":
		found, err := q.TestsNamed(flagName)
		if err != nil {
			return outputError("tests", err)
		}
		tests = fileTestsToCLI(found)
	default:
		found, err := q.AllTests()
		if err != nil {
			return outputError("tests", err)
		}
		tests = fileTestsToCLI(found)
	}
	if tests == nil {
		tests = []CLITest{}
	}
	return outputResult(CLIResult{
		Command:    "tests",
		Results:    tests,
		TotalCount: intPtr(len(tests)),
	})
}

func fileTestsToCLI(found []*safepkt.FileTest) []CLITest {
	out := make([]CLITest, 0, len(found))
	for _, ft := range found {
		out = append(out, CLITest{
			Name:          ft.Name,
			File:          ft.Path,
			Line:          ft.StartLine,
			Column:        ft.StartCol,
			ExpectedPanic: ft.ExpectedPanic,
		})
	}
	return out
}

func testToCLI(path string, d safepkt.TestDescriptor) CLITest {
	return CLITest{
		Name:          d.Name,
		File:          path,
		Line:          d.Position.Row,
		Column:        d.Position.Column,
		ExpectedPanic: d.ExpectedPanic,
	}
}
