package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mhalder/qdrant-mcp-server-sub001/internal/mcp"
	"github.com/mhalder/qdrant-mcp-server-sub001/internal/meta"
)

// checkStatus is the outcome of a single diagnostic check.
type checkStatus string

const (
	statusPass checkStatus = "pass"
	statusWarn checkStatus = "warn"
	statusFail checkStatus = "fail"
)

// checkResult is one diagnostic check's name, status, and message.
type checkResult struct {
	Name     string      `json:"name"`
	Status   checkStatus `json:"status"`
	Message  string      `json:"message"`
	Required bool        `json:"required"`
}

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run diagnostics to ensure QdrantMCPServer can operate correctly in the
current project: data directory permissions, embedder availability, and
whether the code/git collections exist.

Use --json for machine-readable output.`,
		Example: `  # Run diagnostics
  qdrantmcp doctor

  # JSON output for scripting
  qdrantmcp doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runDoctor(cmd *cobra.Command, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pc, err := resolveProject(".")
	if err != nil {
		return err
	}

	results := []checkResult{checkDataDir(pc)}

	deps, cleanup, err := buildServerDeps(ctx, pc)
	if err != nil {
		results = append(results, checkResult{
			Name: "embedder", Status: statusFail, Required: true,
			Message: err.Error(),
		})
	} else {
		defer cleanup()
		results = append(results, checkEmbedder(ctx, deps.Embedder.ModelName(), deps.Embedder))
		results = append(results, checkCollections(ctx, pc, deps)...)
	}

	if jsonOutput {
		return printDoctorJSON(cmd, results)
	}
	printDoctorResults(cmd, results)

	if hasCriticalFailures(results) {
		return fmt.Errorf("system check failed")
	}
	return nil
}

func checkDataDir(pc *projectContext) checkResult {
	probe := filepath.Join(pc.DataDir, ".write-test")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return checkResult{Name: "data directory", Status: statusFail, Required: true,
			Message: fmt.Sprintf("%s is not writable: %v", pc.DataDir, err)}
	}
	_ = os.Remove(probe)
	return checkResult{Name: "data directory", Status: statusPass, Required: true,
		Message: pc.DataDir}
}

type availabilityChecker interface {
	Available(context.Context) bool
}

func checkEmbedder(ctx context.Context, model string, e availabilityChecker) checkResult {
	if e.Available(ctx) {
		return checkResult{Name: "embedder", Status: statusPass, Required: true,
			Message: fmt.Sprintf("%s is reachable", model)}
	}
	return checkResult{Name: "embedder", Status: statusFail, Required: true,
		Message: fmt.Sprintf("%s is unreachable", model)}
}

func checkCollections(ctx context.Context, pc *projectContext, deps mcp.Deps) []checkResult {
	check := func(name, collection string) checkResult {
		exists, err := deps.Store.CollectionExists(ctx, collection)
		if err != nil {
			return checkResult{Name: name, Status: statusWarn, Message: err.Error()}
		}
		if !exists {
			return checkResult{Name: name, Status: statusWarn, Message: "not indexed yet"}
		}
		return checkResult{Name: name, Status: statusPass, Message: collection}
	}

	return []checkResult{
		check("code index", meta.CodeCollectionName(pc.Root)),
		check("git index", meta.GitCollectionName(pc.Root)),
	}
}

func printDoctorResults(cmd *cobra.Command, results []checkResult) {
	w := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(w, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
	}
}

func printDoctorJSON(cmd *cobra.Command, results []checkResult) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func hasCriticalFailures(results []checkResult) bool {
	for _, r := range results {
		if r.Required && r.Status == statusFail {
			return true
		}
	}
	return false
}
