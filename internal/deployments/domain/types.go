// Package domain contains the deployment engine: dependency resolution, planning,
// execution, verification and the orchestrator that drives them per chain.
package domain

import (
	"context"
	"strings"

	"github.com/pendergraft/contraship/internal/chains"
	"github.com/pendergraft/contraship/internal/storage"
)

// DependencyPlaceholder prefixes a constructor argument that is replaced by a
// resolved dependency address, e.g. "$dep:ethUsdPriceFeed".
const DependencyPlaceholder = "$dep:"

// mockRecordPrefix namespaces mock records in the artifact store
const mockRecordPrefix = "mock/"

// MockRecordName returns the store key under which the mock for a dependency is recorded
func MockRecordName(dependency string) string {
	return mockRecordPrefix + dependency
}

// ContractSpec describes one contract to deploy
type ContractSpec struct {
	Name     string
	Artifact *chains.Artifact
	// Dependencies are resolved to addresses in this order
	Dependencies []string
	// ConstructorArgs is a template of literals and DependencyPlaceholder strings.
	// Empty means the resolved dependency addresses in declared order.
	ConstructorArgs []any
	// SourceRoot is the project directory the artifact metadata's sources are read from
	SourceRoot string
}

// MockSpec is the stand-in deployed for a dependency on development networks
type MockSpec struct {
	ContractName    string
	Artifact        *chains.Artifact
	ConstructorArgs []any
}

// Action is what a plan step does
type Action string

const (
	ActionDeploy         Action = "deploy"
	ActionSkip           Action = "skip"
	ActionMockThenDeploy Action = "mock_then_deploy"
)

// PlanStep is the decision for one contract
type PlanStep struct {
	ContractName string
	Action       Action
	ResolvedArgs []any
	Existing     *storage.DeploymentRecord
	Spec         ContractSpec
	// MocksDeployed lists dependencies whose mock was deployed while planning this step
	MocksDeployed []string
}

// Plan is the ordered list of steps for one chain
type Plan struct {
	ChainID int64
	Network string
	Steps   []PlanStep
}

// NodeProvider returns the node collaborator for a chain. *chains.Pool implements it.
type NodeProvider interface {
	Node(ctx context.Context, chainID int64) (chains.Node, error)
}

// isMockRecord reports whether a record name belongs to a dependency mock
func isMockRecord(name string) bool {
	return strings.HasPrefix(name, mockRecordPrefix)
}
