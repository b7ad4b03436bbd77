package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"archflow/internal/storage"
)

var (
	buildsListFormat string
	buildsShowFormat string
	buildsLimit      int
)

var buildsCmd = &cobra.Command{
	Use:   "builds",
	Short: "Manage stored builds",
	Long: `Builds saved with 'archflow flow --save' are kept in .archflow/archflow.db.
A build is referenced by its id, a unique id prefix, or "latest".`,
}

var buildsListCmd = &cobra.Command{
	Use:   "list [dir]",
	Short: "List stored builds, newest first",
	Args:  cobra.MaximumNArgs(1),
	Run:   runBuildsList,
}

var buildsShowCmd = &cobra.Command{
	Use:   "show <build-id>",
	Short: "Show a stored build",
	Long: `Show a stored build.

Examples:
  archflow builds show latest
  archflow builds show 3f2a9c --format=mermaid`,
	Args: cobra.ExactArgs(1),
	Run:  runBuildsShow,
}

var buildsDeleteCmd = &cobra.Command{
	Use:   "delete <build-id>",
	Short: "Delete a stored build",
	Args:  cobra.ExactArgs(1),
	Run:   runBuildsDelete,
}

func init() {
	buildsListCmd.Flags().StringVar(&buildsListFormat, "format", "human", "Output format (json, yaml, human)")
	buildsListCmd.Flags().IntVar(&buildsLimit, "limit", 20, "Maximum builds to list (0 for all)")
	buildsShowCmd.Flags().StringVar(&buildsShowFormat, "format", "json", "Output format (json, yaml, human, mermaid)")

	buildsCmd.AddCommand(buildsListCmd)
	buildsCmd.AddCommand(buildsShowCmd)
	buildsCmd.AddCommand(buildsDeleteCmd)
	rootCmd.AddCommand(buildsCmd)
}

// BuildListResponse is the output of `archflow builds list`.
type BuildListResponse struct {
	Builds []storage.BuildMeta `json:"builds" yaml:"builds"`
}

func runBuildsList(cmd *cobra.Command, args []string) {
	s := mustSession(dirArg(args))
	defer s.Close()
	db := s.mustOpenDB()
	defer func() { _ = db.Close() }()

	builds, err := db.ListBuilds(newContext(), buildsLimit)
	if err != nil {
		fail(err)
	}
	printResponse(&BuildListResponse{Builds: builds}, buildsListFormat)
}

func runBuildsShow(cmd *cobra.Command, args []string) {
	s := mustSession(".")
	defer s.Close()
	db := s.mustOpenDB()
	defer func() { _ = db.Close() }()

	b, err := db.LoadBuild(newContext(), args[0])
	if err != nil {
		fail(err)
	}
	printResponse(b, buildsShowFormat)
}

func runBuildsDelete(cmd *cobra.Command, args []string) {
	s := mustSession(".")
	defer s.Close()
	db := s.mustOpenDB()
	defer func() { _ = db.Close() }()

	id, err := db.DeleteBuild(newContext(), args[0])
	if err != nil {
		fail(err)
	}
	fmt.Printf("Deleted build %s\n", id)
}

func printResponse(resp interface{}, format string) {
	output, err := FormatResponse(resp, OutputFormat(format))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}
