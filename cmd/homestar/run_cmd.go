package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Mindburn-Labs/homestar/pkg/blobstore"
	"github.com/Mindburn-Labs/homestar/pkg/events"
	"github.com/Mindburn-Labs/homestar/pkg/receiptstore"
	"github.com/Mindburn-Labs/homestar/pkg/sandbox"
	"github.com/Mindburn-Labs/homestar/pkg/worker"
	"github.com/Mindburn-Labs/homestar/pkg/workflow"
)

// runRunCmd implements `homestar run`: execute a workflow file to
// completion against a local sandbox and receipt store, with no
// network peer fallback. For a node that participates in the p2p
// network, use homestar-node instead.
func runRunCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		workflowPath string
		dbPath       string
		jsonOutput   bool
	)
	cmd.StringVar(&workflowPath, "workflow", "", "Path to a workflow JSON document (REQUIRED)")
	cmd.StringVar(&dbPath, "db", ":memory:", "SQLite DSN for the receipt store")
	cmd.BoolVar(&jsonOutput, "json", false, "Output receipts as JSON")

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

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	receipts, err := receiptstore.OpenSQLiteStore(dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: opening receipt store: %v\n", err)
		return 1
	}
	defer receipts.Close()

	sb, err := sandbox.NewWasmSandbox(ctx, logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: starting sandbox: %v\n", err)
		return 1
	}
	defer sb.Close(ctx)

	local := blobstore.NewMemoryStore()
	bus := events.NewBus()

	w := worker.New(wf, worker.Config{}, bus, sb, receipts, local, nil, nil, nil)
	result, err := w.Run(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: running workflow: %v\n", err)
		return 1
	}

	if jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result.Receipts); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: encoding receipts: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Fprintf(stdout, "Completed %d task(s)\n", len(result.Receipts))
	for fp, receipt := range result.Receipts {
		fmt.Fprintf(stdout, "  %s -> issuer=%s\n", fp, receipt.Issuer)
	}
	return 0
}
