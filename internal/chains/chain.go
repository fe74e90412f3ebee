// Package chains defines the chain node collaborator used by the deployment engine
// and the contract artifacts it deploys.
package chains

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrTxReverted is returned when a deployment transaction was mined but failed
	ErrTxReverted = errors.New("transaction reverted")
	// ErrTxDropped is returned when the node no longer knows a transaction
	ErrTxDropped = errors.New("transaction dropped")
	// ErrNoBytecode is returned for artifacts without creation code (interfaces)
	ErrNoBytecode = errors.New("artifact has no bytecode")
)

// Node is a connection to one chain
type Node interface {
	// SubmitDeployment sends a contract creation transaction and returns without waiting for it
	SubmitDeployment(ctx context.Context, artifact *Artifact, args []any) (*Submission, error)
	// Confirmations reports how many blocks include the transaction, 0 while pending.
	// It fails with ErrTxReverted or ErrTxDropped.
	Confirmations(ctx context.Context, txHash string) (*Confirmation, error)
	// CodeAt returns the runtime code at an address
	CodeAt(ctx context.Context, address string) ([]byte, error)
}

// Submission is a sent deployment transaction
type Submission struct {
	TxHash  string
	Address string
}

// Confirmation is the inclusion state of a transaction
type Confirmation struct {
	Count       uint64
	BlockNumber uint64
}

// Dialer opens a node for a chain
type Dialer func(ctx context.Context, chainID int64) (Node, error)

// Pool hands out one node per chain ID, dialing lazily
type Pool struct {
	mu    sync.Mutex
	dial  Dialer
	nodes map[int64]Node
}

// NewPool creates a pool that opens missing nodes with dial. dial may be nil when
// every node is registered up front.
func NewPool(dial Dialer) *Pool {
	return &Pool{
		dial:  dial,
		nodes: make(map[int64]Node),
	}
}

// Register adds a ready node for a chain
func (p *Pool) Register(chainID int64, n Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes[chainID] = n
}

// Node returns the node for a chain
func (p *Pool) Node(ctx context.Context, chainID int64) (Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n, ok := p.nodes[chainID]; ok {
		return n, nil
	}
	if p.dial == nil {
		return nil, fmt.Errorf("no node configured for chain %d", chainID)
	}
	n, err := p.dial(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("connecting to chain %d: %w", chainID, err)
	}
	p.nodes[chainID] = n
	return n, nil
}

// Close closes every node that holds a connection
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for id, n := range p.nodes {
		if c, ok := n.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		delete(p.nodes, id)
	}
	return errors.Join(errs...)
}
