// Package gossip implements PeerGossip: DNS peer discovery, task merge
// across the cluster, the dispatch of pending tasks to worker peers, and
// the claim-race (obtain_task) protocol. Grounded on
// original_source/prover/src/bin/prover_rpcd.rs's gossip loop wiring and
// the merge/claim algorithms in original_source/prover/src/shared_state.rs.
package gossip

import (
	"context"
	"fmt"
	"net"

	"github.com/taikochain/proverd/internal/provertypes"
	"github.com/taikochain/proverd/internal/queue"
)

// PeerClient is the subset of internal/rpcclient.Client PeerGossip drives;
// an interface here keeps this package testable without a real HTTP
// round trip.
type PeerClient interface {
	Info(ctx context.Context) (provertypes.NodeInformation, error)
	Status(ctx context.Context) (provertypes.NodeStatus, error)
	Proof(ctx context.Context, opts provertypes.ProofRequestOptions) error
}

// ClientFactory builds a PeerClient for a resolved peer base URL
// (e.g. "http://10.0.0.2:8080").
type ClientFactory func(baseURL string) PeerClient

// Resolver resolves a "host:port" lookup name to peer base URLs.
type Resolver struct {
	SelfID     string
	LookupName string // "" disables peer discovery entirely
	Port       string

	LookupHost func(ctx context.Context, host string) ([]string, error)
	NewClient  ClientFactory
}

// NewResolver constructs a Resolver using net.DefaultResolver for DNS.
func NewResolver(selfID, lookupName string, newClient ClientFactory) *Resolver {
	host, port, err := splitLookup(lookupName)
	if err != nil {
		host, port = "", ""
	}
	return &Resolver{
		SelfID:     selfID,
		LookupName: host,
		Port:       port,
		LookupHost: net.DefaultResolver.LookupHost,
		NewClient:  newClient,
	}
}

func splitLookup(lookupName string) (host, port string, err error) {
	if lookupName == "" {
		return "", "", nil
	}
	return net.SplitHostPort(lookupName)
}

// Peers resolves the configured lookup name to one PeerClient per A/AAAA
// record. An empty LookupName yields no peers (peer discovery disabled).
func (r *Resolver) Peers(ctx context.Context) ([]PeerClient, error) {
	if r.LookupName == "" {
		return nil, nil
	}
	addrs, err := r.LookupHost(ctx, r.LookupName)
	if err != nil {
		return nil, fmt.Errorf("gossip: lookup %s: %w", r.LookupName, err)
	}
	peers := make([]PeerClient, 0, len(addrs))
	for _, addr := range addrs {
		baseURL := fmt.Sprintf("http://%s", net.JoinHostPort(addr, r.Port))
		peers = append(peers, r.NewClient(baseURL))
	}
	return peers, nil
}

// MergeTasksFromPeers implements merge_tasks_from_peers: pull
// NodeInformation from every resolved peer (skipping any whose id equals
// self) and merge it into q.
func (r *Resolver) MergeTasksFromPeers(ctx context.Context, q *queue.Queue) error {
	peers, err := r.Peers(ctx)
	if err != nil {
		return err
	}
	for _, p := range peers {
		info, err := p.Info(ctx)
		if err != nil {
			// Transient network error: logged by the caller, never fatal.
			continue
		}
		if info.ID == r.SelfID {
			continue
		}
		q.Merge(info.Tasks)
	}
	return nil
}

// DispatchTasksToPeers implements dispatch_tasks_to_peers: forward every
// pending task (result absent) to every resolved peer's proof method, for
// the aggregator role. Errors per peer are swallowed, matching §7.
func (r *Resolver) DispatchTasksToPeers(ctx context.Context, q *queue.Queue) error {
	peers, err := r.Peers(ctx)
	if err != nil {
		return err
	}
	pending := q.PendingOptions()
	for _, p := range peers {
		for _, opts := range pending {
			_ = p.Proof(ctx, opts)
		}
	}
	return nil
}

// ObtainTask runs the claim race for pending (§4.6). With no peer lookup
// configured, the node always wins outright. Otherwise it queries every
// peer's status and loses as soon as a peer reports the same pending task
// already obtained, or as soon as a tied peer's id sorts lexicographically
// higher than self's.
func (r *Resolver) ObtainTask(ctx context.Context, pending provertypes.ProofRequestOptions) (bool, error) {
	if r.LookupName == "" {
		return true, nil
	}
	peers, err := r.Peers(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range peers {
		status, err := p.Status(ctx)
		if err != nil {
			continue
		}
		if status.Task == nil || !status.Task.Equal(pending) {
			continue
		}
		if status.Obtained {
			return false, nil
		}
		if status.ID > r.SelfID {
			return false, nil
		}
	}
	return true, nil
}
