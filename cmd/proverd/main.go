// Command proverd runs one node of the proof-computation coordinator: a
// JSON-RPC 2.0 server plus the background duty-cycle (worker) or
// dispatch/merge (aggregator) loops described in spec §2. CLI argument
// parsing, logging setup and environment loading are ambient concerns
// outside the core per §1, kept in this command only.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taikochain/proverd/internal/blockingpool"
	"github.com/taikochain/proverd/internal/compute"
	"github.com/taikochain/proverd/internal/config"
	"github.com/taikochain/proverd/internal/gnarkengine"
	"github.com/taikochain/proverd/internal/gossip"
	"github.com/taikochain/proverd/internal/keycache"
	"github.com/taikochain/proverd/internal/node"
	"github.com/taikochain/proverd/internal/provertypes"
	"github.com/taikochain/proverd/internal/queue"
	"github.com/taikochain/proverd/internal/rpcclient"
	"github.com/taikochain/proverd/internal/rpcserver"
	"github.com/taikochain/proverd/internal/witness"
)

// defaultProofWorkers matches the teacher's ProofPool's default worker
// count (prover/prover.go's NewPool(4)).
const defaultProofWorkers = 4

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "proverd:", err)
		os.Exit(1)
	}
}

func run() error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := config.Load()

	if cfg.Bind == "" {
		return fmt.Errorf("PROVERD_BIND is required")
	}

	selfID := provertypes.NewNodeID()
	role := node.RoleWorker
	if cfg.FullNode {
		role = node.RoleAggregator
	}

	q := queue.New(cfg.MaxTasks)
	pool := blockingpool.New(defaultProofWorkers)

	resolver := gossip.NewResolver(selfID, cfg.LookupName, func(baseURL string) gossip.PeerClient {
		return rpcclient.New(baseURL)
	})

	wrapper := &compute.Wrapper{
		Engine:  gnarkengine.New(),
		Fetcher: witness.New(),
		Keys:    keycache.New(pool),
		Pool:    pool,
		DumpDir: cfg.DumpDir,
	}

	n := node.New(selfID, role, q, resolver, wrapper, log)

	log.Info("starting proverd",
		"id", selfID, "role", role.String(), "bind", cfg.Bind,
		"lookup", cfg.LookupName, "max_tasks", cfg.MaxTasks)

	if err := n.Start(); err != nil {
		return err
	}
	defer n.Stop()

	server := rpcserver.New(n, log)
	httpServer := &http.Server{Addr: cfg.Bind, Handler: server.Handler()}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	}
}
