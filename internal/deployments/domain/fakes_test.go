package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraship/internal/chains"
	"github.com/pendergraft/contraship/internal/explorer"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/storage"
)

const (
	devChain     int64 = 31337
	prodChain    int64 = 4
	bareProdNet  int64 = 5
	priceFeedDep       = "ethUsdPriceFeed"
	rinkebyFeed        = "0x8A753747A1Fa494EC906cE90E9f37563A8AF630e"
)

// fakeTx is one submitted deployment on a fakeNode
type fakeTx struct {
	address   string
	args      []any
	contract  string
	outcome   error
	block     uint64
	mineAfter time.Time
	seenAfter time.Time
}

// fakeNode is an in-memory chains.Node. Transactions mine immediately unless
// neverMine or mineDelay say otherwise.
type fakeNode struct {
	mu sync.Mutex

	submitErr error
	// outcomes makes transactions for an artifact name revert or drop
	outcomes  map[string]error
	neverMine bool
	mineDelay time.Duration
	// unseenFor hides new transactions from Confirmations, like a lagging RPC replica
	unseenFor time.Duration

	seq       int
	txs       map[string]*fakeTx
	code      map[string][]byte
	submitted []string
	deadlines map[time.Time]bool
	codeCalls int
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		outcomes:  make(map[string]error),
		txs:       make(map[string]*fakeTx),
		code:      make(map[string][]byte),
		deadlines: make(map[time.Time]bool),
	}
}

func (n *fakeNode) SubmitDeployment(ctx context.Context, artifact *chains.Artifact, args []any) (*chains.Submission, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.submitErr != nil {
		return nil, n.submitErr
	}
	n.seq++
	tx := &fakeTx{
		address:   fmt.Sprintf("0x%040x", n.seq),
		args:      args,
		contract:  artifact.Name,
		outcome:   n.outcomes[artifact.Name],
		block:     uint64(100 + n.seq),
		mineAfter: time.Now().Add(n.mineDelay),
		seenAfter: time.Now().Add(n.unseenFor),
	}
	hash := fmt.Sprintf("0x%064x", n.seq)
	n.txs[hash] = tx
	n.submitted = append(n.submitted, artifact.Name)
	if tx.outcome == nil {
		n.code[tx.address] = []byte{0x60, 0x01}
	}
	return &chains.Submission{TxHash: hash, Address: tx.address}, nil
}

func (n *fakeNode) Confirmations(ctx context.Context, txHash string) (*chains.Confirmation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if d, ok := ctx.Deadline(); ok {
		n.deadlines[d] = true
	}
	tx, ok := n.txs[txHash]
	if !ok || time.Now().Before(tx.seenAfter) {
		return nil, chains.ErrTxDropped
	}
	if tx.outcome != nil {
		return nil, tx.outcome
	}
	if n.neverMine || time.Now().Before(tx.mineAfter) {
		return &chains.Confirmation{}, nil
	}
	return &chains.Confirmation{Count: 12, BlockNumber: tx.block}, nil
}

func (n *fakeNode) CodeAt(ctx context.Context, address string) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codeCalls++
	return n.code[address], nil
}

func (n *fakeNode) submissions() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.submitted...)
}

func (n *fakeNode) windows() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.deadlines)
}

func (n *fakeNode) setNeverMine(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.neverMine = v
}

func (n *fakeNode) setOutcome(contract string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.outcomes, contract)
		return
	}
	n.outcomes[contract] = err
}

func (n *fakeNode) setSubmitErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.submitErr = err
}

func (n *fakeNode) wipeCode(address string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.code, address)
}

// fakeNodes is a NodeProvider over a fixed set of fake nodes
type fakeNodes map[int64]*fakeNode

func (f fakeNodes) Node(ctx context.Context, chainID int64) (chains.Node, error) {
	n, ok := f[chainID]
	if !ok {
		return nil, fmt.Errorf("no node for chain %d", chainID)
	}
	return n, nil
}

// fakeExplorer replays scripted results, repeating the last one
type fakeExplorer struct {
	mu       sync.Mutex
	script   []explorerReply
	requests []explorer.Request
}

type explorerReply struct {
	result explorer.Result
	err    error
}

func (e *fakeExplorer) Submit(ctx context.Context, req explorer.Request) (explorer.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	if len(e.script) == 0 {
		return explorer.Result{Status: explorer.StatusVerified, Message: "Pass - Verified"}, nil
	}
	reply := e.script[0]
	if len(e.script) > 1 {
		e.script = e.script[1:]
	}
	return reply.result, reply.err
}

func (e *fakeExplorer) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T) *networks.Registry {
	t.Helper()
	r := networks.NewRegistry()
	require.NoError(t, r.Register(networks.NetworkDescriptor{
		ChainID:               devChain,
		Name:                  "hardhat",
		IsDevelopment:         true,
		ConfirmationsRequired: 1,
		// Ignored on development networks
		KnownAddresses: map[string]string{priceFeedDep: rinkebyFeed},
	}))
	require.NoError(t, r.Register(networks.NetworkDescriptor{
		ChainID:               prodChain,
		Name:                  "rinkeby",
		ConfirmationsRequired: 6,
		ExplorerAPIURL:        "https://explorer.test/api",
		KnownAddresses:        map[string]string{priceFeedDep: rinkebyFeed},
	}))
	require.NoError(t, r.Register(networks.NetworkDescriptor{
		ChainID:               bareProdNet,
		Name:                  "goerli",
		ConfirmationsRequired: 1,
		ExplorerAPIURL:        "https://goerli.explorer.test/api",
	}))
	return r
}

const (
	fundMeABI = `[{"type":"constructor","inputs":[{"name":"priceFeed","type":"address","internalType":"address"}],"stateMutability":"nonpayable"}]`
	mockABI   = `[{"type":"constructor","inputs":[{"name":"decimals","type":"uint8","internalType":"uint8"},{"name":"initialAnswer","type":"int256","internalType":"int256"}],"stateMutability":"nonpayable"}]`
	simpleABI = `[]`
)

// testArtifact builds an artifact whose metadata lists one source written under root
func testArtifact(t *testing.T, root, name, abiJSON string) *chains.Artifact {
	t.Helper()
	src := "contracts/" + name + ".sol"
	require.NoError(t, os.MkdirAll(filepath.Join(root, "contracts"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, src), []byte("// SPDX-License-Identifier: MIT\ncontract "+name+" {}\n"), 0644))

	md, err := json.Marshal(map[string]any{
		"compiler": map[string]any{"version": "0.8.8+commit.dddeac2f"},
		"language": "Solidity",
		"settings": map[string]any{
			"compilationTarget": map[string]string{src: name},
			"optimizer":         map[string]any{"enabled": false, "runs": 200},
		},
		"sources": map[string]any{src: map[string]any{"license": "MIT"}},
	})
	require.NoError(t, err)

	return &chains.Artifact{
		Name:       name,
		SourcePath: src,
		License:    "MIT",
		ABI:        json.RawMessage(abiJSON),
		Bytecode:   "0x6001600c60003960016000f300",
		Compiler:   chains.Compiler{Version: "v0.8.8+commit.dddeac2f"},
		Metadata:   md,
	}
}

// testEnv wires the deployment engine over fakes and an in-memory store
type testEnv struct {
	t        *testing.T
	root     string
	registry *networks.Registry
	store    *storage.MemoryStore
	nodes    fakeNodes
	explorer *fakeExplorer

	deployer     *Deployer
	resolver     *Resolver
	planner      *Planner
	verifier     *Verifier
	orchestrator *Orchestrator

	fundMe *chains.Artifact
	mock   *chains.Artifact
	simple *chains.Artifact
}

type envOption func(*envConfig)

type envConfig struct {
	deployer      DeployerConfig
	verifier      VerifierConfig
	reconcileCode bool
	noMocks       bool
}

func withDeployerConfig(c DeployerConfig) envOption {
	return func(cfg *envConfig) { cfg.deployer = c }
}

func withVerifierConfig(c VerifierConfig) envOption {
	return func(cfg *envConfig) { cfg.verifier = c }
}

func withCodeReconciliation() envOption {
	return func(cfg *envConfig) { cfg.reconcileCode = true }
}

func withoutMocks() envOption {
	return func(cfg *envConfig) { cfg.noMocks = true }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := envConfig{
		deployer: DeployerConfig{
			SubmitTimeout:       time.Second,
			ConfirmationTimeout: time.Second,
			PollInterval:        time.Millisecond,
		},
		verifier: VerifierConfig{
			Enabled:      true,
			MaxAttempts:  5,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
		},
	}
	for _, o := range opts {
		o(&cfg)
	}

	root := t.TempDir()
	env := &testEnv{
		t:        t,
		root:     root,
		registry: testRegistry(t),
		store:    storage.NewMemoryStore(),
		nodes: fakeNodes{
			devChain:    newFakeNode(),
			prodChain:   newFakeNode(),
			bareProdNet: newFakeNode(),
		},
		explorer: &fakeExplorer{},
	}
	env.fundMe = testArtifact(t, root, "FundMe", fundMeABI)
	env.mock = testArtifact(t, root, "MockV3Aggregator", mockABI)
	env.simple = testArtifact(t, root, "SimpleStorage", simpleABI)

	mocks := map[string]MockSpec{}
	if !cfg.noMocks {
		mocks[priceFeedDep] = MockSpec{
			ContractName:    "MockV3Aggregator",
			Artifact:        env.mock,
			ConstructorArgs: []any{8, "200000000000"},
		}
	}

	logger := discardLogger()
	env.deployer = NewDeployer(env.registry, env.store, env.nodes, cfg.deployer, logger)
	env.resolver = NewResolver(env.registry, env.store, env.deployer, env.nodes, mocks, cfg.reconcileCode, logger)
	env.planner = NewPlanner(env.registry, env.store, env.resolver, env.nodes, cfg.reconcileCode, logger)
	env.verifier = NewVerifier(env.registry, env.store, env.explorer, cfg.verifier, logger)
	env.orchestrator = NewOrchestrator(env.registry, env.planner, env.deployer, env.verifier, logger)
	return env
}

func (e *testEnv) fundMeSpec() ContractSpec {
	return ContractSpec{
		Name:         "FundMe",
		Artifact:     e.fundMe,
		Dependencies: []string{priceFeedDep},
		SourceRoot:   e.root,
	}
}

func (e *testEnv) simpleSpec() ContractSpec {
	return ContractSpec{
		Name:       "SimpleStorage",
		Artifact:   e.simple,
		SourceRoot: e.root,
	}
}

func (e *testEnv) record(name string, chainID int64) *storage.DeploymentRecord {
	e.t.Helper()
	rec, err := e.store.GetRecord(context.Background(), name, chainID)
	require.NoError(e.t, err)
	return rec
}
