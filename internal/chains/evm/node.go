// Package evm implements the chain node collaborator for Ethereum and compatible chains.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pendergraft/contraship/internal/chains"
)

// Backend is the subset of an Ethereum client the node needs. *ethclient.Client and
// the simulated backend client both satisfy it.
type Backend interface {
	bind.ContractBackend
	ethereum.TransactionReader
	ethereum.BlockNumberReader
	ethereum.ChainIDReader
}

// Options configures a node
type Options struct {
	// GasLimit caps deployment gas; zero estimates it
	GasLimit uint64
}

// Node implements chains.Node over an Ethereum JSON-RPC backend
type Node struct {
	backend Backend
	key     *ecdsa.PrivateKey
	opts    Options
	logger  *slog.Logger
	closer  func()

	mu      sync.Mutex
	chainID *big.Int
}

// NewNode creates a node that signs deployments with key
func NewNode(backend Backend, key *ecdsa.PrivateKey, opts Options, logger *slog.Logger) *Node {
	return &Node{
		backend: backend,
		key:     key,
		opts:    opts,
		logger:  logger,
	}
}

// Dial connects to an RPC endpoint
func Dial(ctx context.Context, rpcURL string, key *ecdsa.PrivateKey, opts Options, logger *slog.Logger) (*Node, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}
	n := NewNode(client, key, opts, logger.With("rpc", rpcURL))
	n.closer = client.Close
	return n, nil
}

// ParsePrivateKey parses a hex private key with or without 0x prefix
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return nil, errors.New("deployer private key is not set")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// Close releases the RPC connection
func (n *Node) Close() error {
	if n.closer != nil {
		n.closer()
	}
	return nil
}

// Deployer returns the address deployments are sent from
func (n *Node) Deployer() common.Address {
	return crypto.PubkeyToAddress(n.key.PublicKey)
}

func (n *Node) chain(ctx context.Context) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.chainID != nil {
		return n.chainID, nil
	}
	id, err := n.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	n.chainID = id
	return id, nil
}

// SubmitDeployment sends the contract creation transaction
func (n *Node) SubmitDeployment(ctx context.Context, artifact *chains.Artifact, args []any) (*chains.Submission, error) {
	parsed, err := artifact.ParsedABI()
	if err != nil {
		return nil, err
	}
	converted, err := artifact.ConstructorArgs(args)
	if err != nil {
		return nil, err
	}
	bytecode := common.FromHex(artifact.Bytecode)
	if len(bytecode) == 0 {
		return nil, chains.ErrNoBytecode
	}

	chainID, err := n.chain(ctx)
	if err != nil {
		return nil, err
	}

	auth, err := bind.NewKeyedTransactorWithChainID(n.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	gasPrice, err := n.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	auth.Context = ctx
	auth.GasLimit = n.opts.GasLimit
	auth.GasPrice = gasPrice

	address, tx, _, err := bind.DeployContract(auth, parsed, bytecode, n.backend, converted...)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy contract: %w", err)
	}

	n.logger.
		With("contract", artifact.Name).
		With("address", address.Hex()).
		With("tx_hash", tx.Hash().Hex()).
		Info("contract deployment transaction sent")

	return &chains.Submission{
		TxHash:  tx.Hash().Hex(),
		Address: address.Hex(),
	}, nil
}

// Confirmations reports the inclusion depth of a transaction. A transaction the
// node has never seen is reported as chains.ErrTxDropped; callers decide how long
// to tolerate that.
func (n *Node) Confirmations(ctx context.Context, txHash string) (*chains.Confirmation, error) {
	hash := common.HexToHash(txHash)

	receipt, err := n.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		_, pending, err := n.backend.TransactionByHash(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s", chains.ErrTxDropped, txHash)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up transaction: %w", err)
		}
		if !pending {
			n.logger.Debug("transaction known but receipt not yet indexed", "tx_hash", txHash)
		}
		return &chains.Confirmation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s in block %d", chains.ErrTxReverted, txHash, receipt.BlockNumber)
	}

	head, err := n.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block number: %w", err)
	}

	mined := receipt.BlockNumber.Uint64()
	c := &chains.Confirmation{BlockNumber: mined}
	if head >= mined {
		c.Count = head - mined + 1
	}
	return c, nil
}

// CodeAt returns the latest runtime code at address
func (n *Node) CodeAt(ctx context.Context, address string) ([]byte, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	code, err := n.backend.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get code: %w", err)
	}
	return code, nil
}
