package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraship/internal/storage"
)

func TestPlanner_FreshProductionContractIsDeployed(t *testing.T) {
	env := newTestEnv(t)

	plan, err := env.planner.Plan(context.Background(), []ContractSpec{env.fundMeSpec()}, prodChain)
	require.NoError(t, err)

	assert.Equal(t, "rinkeby", plan.Network)
	require.Len(t, plan.Steps, 1)
	step := plan.Steps[0]
	assert.Equal(t, ActionDeploy, step.Action)
	assert.Equal(t, []any{rinkebyFeed}, step.ResolvedArgs)
	assert.Nil(t, step.Existing)
	assert.Empty(t, step.MocksDeployed)
}

func TestPlanner_ArgsChangeForcesRedeploy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.store.UpsertRecord(ctx, &storage.DeploymentRecord{
		ContractName:    "FundMe",
		ChainID:         prodChain,
		Address:         "0x1111111111111111111111111111111111111111",
		ConstructorArgs: []any{"0x2222222222222222222222222222222222222222"},
		TxHash:          "0xabc",
		Status:          storage.StatusDeployed,
	})
	require.NoError(t, err)

	plan, err := env.planner.Plan(ctx, []ContractSpec{env.fundMeSpec()}, prodChain)
	require.NoError(t, err)
	assert.Equal(t, ActionDeploy, plan.Steps[0].Action)
	assert.NotNil(t, plan.Steps[0].Existing)
}

func TestPlanner_MatchingRecordIsSkippedRegardlessOfAddressCase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.store.UpsertRecord(ctx, &storage.DeploymentRecord{
		ContractName:    "FundMe",
		ChainID:         prodChain,
		Address:         "0x1111111111111111111111111111111111111111",
		ConstructorArgs: []any{"0x8a753747a1fa494ec906ce90e9f37563a8af630e"},
		TxHash:          "0xabc",
		Status:          storage.StatusDeployed,
	})
	require.NoError(t, err)

	plan, err := env.planner.Plan(ctx, []ContractSpec{env.fundMeSpec()}, prodChain)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, plan.Steps[0].Action)
}

func TestPlanner_DevelopmentIgnoresKnownAddresses(t *testing.T) {
	env := newTestEnv(t)

	plan, err := env.planner.Plan(context.Background(), []ContractSpec{env.fundMeSpec()}, devChain)
	require.NoError(t, err)

	step := plan.Steps[0]
	assert.Equal(t, ActionMockThenDeploy, step.Action)
	assert.Equal(t, []string{priceFeedDep}, step.MocksDeployed)
	mock := env.record(MockRecordName(priceFeedDep), devChain)
	assert.Equal(t, []any{mock.Address}, step.ResolvedArgs)
	assert.NotEqual(t, []any{rinkebyFeed}, step.ResolvedArgs)
}

func TestPlanner_DevelopmentWithoutMockFails(t *testing.T) {
	env := newTestEnv(t, withoutMocks())

	_, err := env.planner.Plan(context.Background(), []ContractSpec{env.fundMeSpec()}, devChain)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingDependencyAddress)
	assert.Empty(t, env.nodes[devChain].submissions())
}

func TestPlanner_MockIsReusedAcrossContracts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	consumer := ContractSpec{
		Name:         "PriceConsumer",
		Artifact:     env.simple,
		Dependencies: []string{priceFeedDep},
		SourceRoot:   env.root,
	}

	plan, err := env.planner.Plan(ctx, []ContractSpec{env.fundMeSpec(), consumer}, devChain)
	require.NoError(t, err)

	assert.Equal(t, ActionMockThenDeploy, plan.Steps[0].Action)
	assert.Equal(t, ActionDeploy, plan.Steps[1].Action)
	assert.Equal(t, plan.Steps[0].ResolvedArgs, plan.Steps[1].ResolvedArgs)
	assert.Equal(t, []string{"MockV3Aggregator"}, env.nodes[devChain].submissions())
}

func TestPlanner_RejectsInvalidContracts(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name      string
		contracts []ContractSpec
		wantErr   string
	}{
		{
			name:      "missing artifact",
			contracts: []ContractSpec{{Name: "FundMe"}},
			wantErr:   "no artifact",
		},
		{
			name:      "invalid name",
			contracts: []ContractSpec{{Name: "", Artifact: env.fundMe}},
			wantErr:   "name",
		},
		{
			name:      "duplicate",
			contracts: []ContractSpec{env.simpleSpec(), env.simpleSpec()},
			wantErr:   "listed twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.planner.Plan(context.Background(), tt.contracts, prodChain)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPlanner_PromotesPendingRecordThatWasMined(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A run that crashed after submitting leaves a pending record behind
	sub, err := env.nodes[prodChain].SubmitDeployment(ctx, env.fundMe, []any{rinkebyFeed})
	require.NoError(t, err)
	_, err = env.store.UpsertRecord(ctx, &storage.DeploymentRecord{
		ContractName:    "FundMe",
		ChainID:         prodChain,
		Address:         sub.Address,
		ConstructorArgs: []any{rinkebyFeed},
		TxHash:          sub.TxHash,
		Status:          storage.StatusPending,
	})
	require.NoError(t, err)

	plan, err := env.planner.Plan(ctx, []ContractSpec{env.fundMeSpec()}, prodChain)
	require.NoError(t, err)

	assert.Equal(t, ActionSkip, plan.Steps[0].Action)
	rec := env.record("FundMe", prodChain)
	assert.Equal(t, storage.StatusDeployed, rec.Status)
	assert.Equal(t, sub.Address, rec.Address)
	assert.Positive(t, rec.BlockNumber)
}

func TestPlanner_MarksDroppedPendingRecordFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.store.UpsertRecord(ctx, &storage.DeploymentRecord{
		ContractName:    "FundMe",
		ChainID:         prodChain,
		Address:         "0x1111111111111111111111111111111111111111",
		ConstructorArgs: []any{rinkebyFeed},
		TxHash:          "0xdeadbeef",
		Status:          storage.StatusPending,
	})
	require.NoError(t, err)

	plan, err := env.planner.Plan(ctx, []ContractSpec{env.fundMeSpec()}, prodChain)
	require.NoError(t, err)

	assert.Equal(t, ActionDeploy, plan.Steps[0].Action)
	assert.Equal(t, storage.StatusFailed, env.record("FundMe", prodChain).Status)
}

func TestPlanner_CodeReconciliation(t *testing.T) {
	env := newTestEnv(t, withCodeReconciliation())
	ctx := context.Background()
	node := env.nodes[prodChain]

	_, err := env.orchestrator.Run(ctx, prodChain, []ContractSpec{env.fundMeSpec()})
	require.NoError(t, err)

	plan, err := env.planner.Plan(ctx, []ContractSpec{env.fundMeSpec()}, prodChain)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, plan.Steps[0].Action)

	// The chain was reset underneath the artifact store
	node.wipeCode(env.record("FundMe", prodChain).Address)

	plan, err = env.planner.Plan(ctx, []ContractSpec{env.fundMeSpec()}, prodChain)
	require.NoError(t, err)
	assert.Equal(t, ActionDeploy, plan.Steps[0].Action)
}

func TestSubstituteArgs(t *testing.T) {
	addrs := map[string]string{
		"priceFeed": "0x1111111111111111111111111111111111111111",
		"token":     "0x2222222222222222222222222222222222222222",
	}

	tests := []struct {
		name    string
		spec    ContractSpec
		want    []any
		wantErr error
	}{
		{
			name: "empty template uses dependency order",
			spec: ContractSpec{Dependencies: []string{"token", "priceFeed"}},
			want: []any{addrs["token"], addrs["priceFeed"]},
		},
		{
			name: "placeholders and literals",
			spec: ContractSpec{
				Dependencies:    []string{"priceFeed"},
				ConstructorArgs: []any{int64(8), "$dep:priceFeed", "plain"},
			},
			want: []any{int64(8), addrs["priceFeed"], "plain"},
		},
		{
			name: "nested lists",
			spec: ContractSpec{
				Dependencies:    []string{"priceFeed", "token"},
				ConstructorArgs: []any{[]any{"$dep:token", "$dep:priceFeed"}},
			},
			want: []any{[]any{addrs["token"], addrs["priceFeed"]}},
		},
		{
			name: "undeclared dependency",
			spec: ContractSpec{
				Dependencies:    []string{"priceFeed"},
				ConstructorArgs: []any{"$dep:token"},
			},
			wantErr: ErrInvalidTemplate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := substituteArgs(tt.spec, addrs)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanner_ChecksEveryContractBeforeDeployingMocks(t *testing.T) {
	tests := []struct {
		name    string
		second  ContractSpec
		wantErr error
	}{
		{
			name:    "dependency without mock",
			second:  ContractSpec{Name: "Raffle", Dependencies: []string{"linkToken"}},
			wantErr: ErrMissingDependencyAddress,
		},
		{
			name: "template references undeclared dependency",
			second: ContractSpec{
				Name:            "Raffle",
				Dependencies:    []string{priceFeedDep},
				ConstructorArgs: []any{"$dep:linkToken"},
			},
			wantErr: ErrInvalidTemplate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			second := tt.second
			second.Artifact = env.simple

			_, err := env.planner.Plan(context.Background(), []ContractSpec{env.fundMeSpec(), second}, devChain)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), "planning Raffle on hardhat")
			assert.Empty(t, env.nodes[devChain].submissions())
		})
	}
}

func TestResolver_Check(t *testing.T) {
	env := newTestEnv(t)

	assert.NoError(t, env.resolver.Check(priceFeedDep, devChain))
	assert.NoError(t, env.resolver.Check(priceFeedDep, prodChain))
	assert.ErrorIs(t, env.resolver.Check("linkToken", devChain), ErrMissingDependencyAddress)
	assert.ErrorIs(t, env.resolver.Check(priceFeedDep, bareProdNet), ErrMissingDependencyAddress)
	assert.ErrorIs(t, env.resolver.Check(priceFeedDep, 999), ErrUnknownNetwork)
	assert.Empty(t, env.nodes[devChain].submissions())
}
