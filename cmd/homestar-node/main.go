package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/homestar/pkg/blobstore"
	"github.com/Mindburn-Labs/homestar/pkg/config"
	"github.com/Mindburn-Labs/homestar/pkg/events"
	"github.com/Mindburn-Labs/homestar/pkg/metrics"
	"github.com/Mindburn-Labs/homestar/pkg/observability"
	"github.com/Mindburn-Labs/homestar/pkg/p2p"
	"github.com/Mindburn-Labs/homestar/pkg/receiptstore"
	"github.com/Mindburn-Labs/homestar/pkg/rpcserver"
	"github.com/Mindburn-Labs/homestar/pkg/sandbox"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable so tests can stub out the long-running
// daemon path.
var startServer = runServer

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) >= 2 {
		switch args[1] {
		case "health":
			return runHealthCmd(args[2:], stdout, stderr)
		case "help", "--help", "-h":
			printUsage(stdout)
			return 0
		}
	}
	return startServer(stdout, stderr)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: homestar-node [command]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  (none)   Run the node (default): p2p, sandbox, RPC, metrics, tracing")
	fmt.Fprintln(w, "  health   Check a running node's health over HTTP")
}

func runHealthCmd(args []string, stdout, stderr io.Writer) int {
	resp, err := http.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(stdout, "OK")
	return 0
}

//nolint:gocyclo
func runServer(stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, nil))
	ctx := context.Background()

	cfg, err := config.Load(getenvDefault("HOMESTAR_CONFIG", "homestar.yaml"))
	if err != nil {
		logger.Error("loading config", "error", err)
		return 1
	}

	obs, err := observability.New(ctx, observability.Config{
		ServiceName:  "homestar-node",
		Enabled:      cfg.Monitoring.OTLPEnabled,
		OTLPEndpoint: firstNonEmpty(cfg.Monitoring.OTLPAddr, "localhost:4317"),
		SampleRate:   1.0,
		BatchTimeout: 5 * time.Second,
		Insecure:     true,
	})
	if err != nil {
		logger.Error("initializing observability", "error", err)
		return 1
	}
	defer obs.Shutdown(ctx)

	receipts, err := receiptstore.OpenSQLiteStore(cfg.Node.DB.URL)
	if err != nil {
		logger.Error("opening receipt store", "error", err)
		return 1
	}
	defer receipts.Close()

	local, err := blobstore.NewFileStore("data/blobs")
	if err != nil {
		logger.Error("opening blob store", "error", err)
		return 1
	}

	sb, err := sandbox.NewWasmSandbox(ctx, logger)
	if err != nil {
		logger.Error("starting sandbox", "error", err)
		return 1
	}
	defer sb.Close(ctx)

	bus := events.NewBus()
	sink := newReceiptSink(receipts)
	info := newWorkflowInfoTracker(bus)

	node, err := p2p.New(ctx, p2p.Config{
		ListenAddrs:     []string{cfg.Node.Network.Libp2p.ListenAddress},
		BootstrapPeers:  cfg.Node.Network.Libp2p.DHT.BootstrapPeers,
		Rendezvous:      cfg.Node.Network.Libp2p.Rendezvous.String,
		EnableMDNS:      cfg.Node.Network.Libp2p.MDNS.Enable,
		GossipHeartbeat: time.Duration(cfg.Node.Network.Libp2p.Pubsub.HeartbeatMs) * time.Millisecond,
	}, bus)
	if err != nil {
		logger.Error("starting p2p node", "error", err)
		return 1
	}
	defer node.Close()
	node.SetReceiptSink(sink)
	node.SetWorkflowInfoSource(info)

	logger.Info("node started", "peer_id", node.ID(), "addrs", node.Addrs())

	submitter := newWorkflowSubmitter(bus, sb, receipts, local, node, info)

	ks, err := rpcserver.NewKeySet()
	if err != nil {
		logger.Error("initializing rpc key set", "error", err)
		return 1
	}
	rpc := rpcserver.New(rpcserver.Config{KeySet: ks}, bus, submitter)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/ws", rpc)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Node.Network.Webserver.Port), Handler: mux}
	go func() {
		logger.Info("webserver listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("webserver failed", "error", err)
		}
	}()

	token, _ := ks.Sign("bootstrap")
	logger.Info("rpc bootstrap token minted (rotate before sharing)", "token", token)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Node.ShutdownTimeout.Duration())
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return 0
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
