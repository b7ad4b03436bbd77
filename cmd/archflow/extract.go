package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"archflow/internal/model"
)

var (
	extractOutput       string
	extractIncludeTests bool
	extractFormat       string
)

var extractCmd = &cobra.Command{
	Use:   "extract [dir]",
	Short: "Extract the structural model of a Go codebase",
	Long: `Parse every package under dir and write the structural model that
'archflow flow --model' consumes. The file format follows the output name:
.json, .yaml or .yml, optionally followed by .zst for zstd compression.
Without --output the model is written to stdout as JSON.

Examples:
  archflow extract -o model.json
  archflow extract ./services/api -o api.yaml.zst --include-tests`,
	Args: cobra.MaximumNArgs(1),
	Run:  runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "Model file to write")
	extractCmd.Flags().BoolVar(&extractIncludeTests, "include-tests", false, "Include _test.go files")
	extractCmd.Flags().StringVar(&extractFormat, "format", "human", "Summary format when writing a file (json, human)")
	rootCmd.AddCommand(extractCmd)
}

// ExtractResponse summarizes an extraction written to a file.
type ExtractResponse struct {
	Root   string      `json:"root" yaml:"root"`
	Output string      `json:"output,omitempty" yaml:"output,omitempty"`
	Stats  model.Stats `json:"stats" yaml:"stats"`
}

func runExtract(cmd *cobra.Command, args []string) {
	s := mustSession(dirArg(args))
	defer s.Close()
	if extractIncludeTests {
		s.cfg.Extract.IncludeTests = true
	}

	m, err := s.extractor().ExtractDir(newContext(), s.root)
	if err != nil {
		fail(err)
	}

	if extractOutput == "" {
		if err := model.Write(os.Stdout, m, model.FormatJSON); err != nil {
			fail(err)
		}
		fmt.Println()
		return
	}

	if err := model.Save(extractOutput, m); err != nil {
		fail(err)
	}
	resp := &ExtractResponse{Root: s.root, Output: extractOutput, Stats: m.Stats()}
	output, err := FormatResponse(resp, OutputFormat(extractFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}
