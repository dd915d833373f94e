package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/homestar/pkg/scheduler"
	"github.com/Mindburn-Labs/homestar/pkg/workflow"
)

// runShowCmd implements `homestar show`, restored from the original
// runtime's `cli/show.rs`: print a workflow's compiled execution
// schedule — the batches the scheduler would run it in, and the
// external resources it would need fetched first — without running it.
func runShowCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("show", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		workflowPath string
		jsonOutput   bool
	)
	cmd.StringVar(&workflowPath, "workflow", "", "Path to a workflow JSON document (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the schedule as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if workflowPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --workflow is required")
		return 2
	}

	data, err := os.ReadFile(workflowPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: reading workflow: %v\n", err)
		return 2
	}

	var wf workflow.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: parsing workflow: %v\n", err)
		return 2
	}

	graph, err := scheduler.Compile(wf)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: compiling workflow: %v\n", err)
		return 1
	}

	fp, err := wf.Fingerprint()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: fingerprinting workflow: %v\n", err)
		return 1
	}

	if jsonOutput {
		result := map[string]any{
			"fingerprint":        fp.String(),
			"num_tasks":          len(wf.Tasks),
			"batches":            graph.Batches,
			"external_resources": resourceStrings(graph.ExternalResources),
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return boolToExit(enc.Encode(result) == nil)
	}

	fmt.Fprintln(stdout, "homestar(╯°□°)╯")
	fmt.Fprintf(stdout, "  fingerprint: %s\n", fp.String())
	fmt.Fprintf(stdout, "  tasks:       %d\n", len(wf.Tasks))
	fmt.Fprintf(stdout, "  batches:     %d\n", len(graph.Batches))
	for i, batch := range graph.Batches {
		fmt.Fprintf(stdout, "    [%d] %v\n", i, batch)
	}
	if len(graph.ExternalResources) > 0 {
		fmt.Fprintln(stdout, "  external resources:")
		for _, r := range resourceStrings(graph.ExternalResources) {
			fmt.Fprintf(stdout, "    - %s\n", r)
		}
	}
	return 0
}

func resourceStrings(resources []workflow.Resource) []string {
	out := make([]string, len(resources))
	for i, r := range resources {
		out[i] = r.String()
	}
	return out
}

func boolToExit(ok bool) int {
	if ok {
		return 0
	}
	return 1
}
