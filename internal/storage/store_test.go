package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runRecordStoreSuite exercises the RecordStore contract against any backend
func runRecordStoreSuite(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.GetRecord(ctx, "FundMe", 4)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("UpsertAndGet", func(t *testing.T) {
		saved, err := store.UpsertRecord(ctx, &DeploymentRecord{
			ContractName:    "FundMe",
			ChainID:         4,
			Address:         "0x1111111111111111111111111111111111111111",
			ConstructorArgs: []any{"0x8A753747A1Fa494EC906cE90E9f37563A8AF630e", 8},
			TxHash:          "0xabc",
			Status:          StatusDeployed,
			BlockNumber:     42,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID)
		assert.False(t, saved.CreatedAt.IsZero())

		got, err := store.GetRecord(ctx, "FundMe", 4)
		require.NoError(t, err)
		assert.Equal(t, saved.ID, got.ID)
		assert.Equal(t, "0x1111111111111111111111111111111111111111", got.Address)
		assert.Equal(t, StatusDeployed, got.Status)
		assert.Equal(t, int64(42), got.BlockNumber)
		assert.False(t, got.Verified)
		assert.True(t, ArgsEqual(got.ConstructorArgs, []any{"0x8A753747A1Fa494EC906cE90E9f37563A8AF630e", 8}))
	})

	t.Run("UpsertKeepsSingleRecordPerKey", func(t *testing.T) {
		first, err := store.GetRecord(ctx, "FundMe", 4)
		require.NoError(t, err)

		updated, err := store.UpsertRecord(ctx, &DeploymentRecord{
			ContractName: "FundMe",
			ChainID:      4,
			Address:      "0x2222222222222222222222222222222222222222",
			Status:       StatusDeployed,
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, updated.ID)
		assert.Equal(t, first.CreatedAt.Unix(), updated.CreatedAt.Unix())

		records, err := store.ListRecords(ctx, RecordFilter{ChainID: 4})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "0x2222222222222222222222222222222222222222", records[0].Address)
		assert.Empty(t, records[0].ConstructorArgs)
	})

	t.Run("ModifyIncrementsAttempts", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := store.Modify(ctx, "FundMe", 4, func(cur *DeploymentRecord) (*DeploymentRecord, error) {
				require.NotNil(t, cur)
				cur.VerificationAttempts++
				return cur, nil
			})
			require.NoError(t, err)
		}
		got, err := store.GetRecord(ctx, "FundMe", 4)
		require.NoError(t, err)
		assert.Equal(t, 3, got.VerificationAttempts)
	})

	t.Run("ModifyNilResultWritesNothing", func(t *testing.T) {
		got, err := store.Modify(ctx, "Absent", 4, func(cur *DeploymentRecord) (*DeploymentRecord, error) {
			assert.Nil(t, cur)
			return nil, nil
		})
		require.NoError(t, err)
		assert.Nil(t, got)

		_, err = store.GetRecord(ctx, "Absent", 4)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("ModifyErrorRollsBack", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := store.Modify(ctx, "FundMe", 4, func(cur *DeploymentRecord) (*DeploymentRecord, error) {
			cur.Verified = true
			return nil, boom
		})
		assert.True(t, errors.Is(err, boom))

		got, err := store.GetRecord(ctx, "FundMe", 4)
		require.NoError(t, err)
		assert.False(t, got.Verified)
	})

	t.Run("ModifyRejectsKeyChange", func(t *testing.T) {
		_, err := store.Modify(ctx, "FundMe", 4, func(cur *DeploymentRecord) (*DeploymentRecord, error) {
			cur.ChainID = 5
			return cur, nil
		})
		assert.True(t, errors.Is(err, ErrKeyMismatch))
	})

	t.Run("ModifyRejectsInvalidStatus", func(t *testing.T) {
		_, err := store.UpsertRecord(ctx, &DeploymentRecord{ContractName: "NoStatus", ChainID: 4})
		assert.True(t, errors.Is(err, ErrInvalidStatus))
	})

	t.Run("ConcurrentModifyDoesNotLoseUpdates", func(t *testing.T) {
		_, err := store.UpsertRecord(ctx, &DeploymentRecord{ContractName: "Counter", ChainID: 31337, Status: StatusPending})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Modify(ctx, "Counter", 31337, func(cur *DeploymentRecord) (*DeploymentRecord, error) {
					cur.VerificationAttempts++
					return cur, nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := store.GetRecord(ctx, "Counter", 31337)
		require.NoError(t, err)
		assert.Equal(t, 10, got.VerificationAttempts)
	})

	t.Run("ListRecordsFilters", func(t *testing.T) {
		_, err := store.UpsertRecord(ctx, &DeploymentRecord{ContractName: "Verified", ChainID: 4, Status: StatusDeployed, Verified: true})
		require.NoError(t, err)

		all, err := store.ListRecords(ctx, RecordFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)
		assert.Equal(t, int64(4), all[0].ChainID)
		assert.Equal(t, "FundMe", all[0].ContractName)
		assert.Equal(t, int64(31337), all[2].ChainID)

		verified := true
		onlyVerified, err := store.ListRecords(ctx, RecordFilter{Verified: &verified})
		require.NoError(t, err)
		require.Len(t, onlyVerified, 1)
		assert.Equal(t, "Verified", onlyVerified[0].ContractName)

		pending, err := store.ListRecords(ctx, RecordFilter{Status: StatusPending})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "Counter", pending[0].ContractName)
	})

	t.Run("LargeIntegerArgsRoundTrip", func(t *testing.T) {
		big := json.Number("115792089237316195423570985008687907853269984665640564039457584007913129639935")
		_, err := store.UpsertRecord(ctx, &DeploymentRecord{
			ContractName:    "MockV3Aggregator",
			ChainID:         31337,
			Status:          StatusDeployed,
			ConstructorArgs: []any{8, big},
		})
		require.NoError(t, err)

		got, err := store.GetRecord(ctx, "MockV3Aggregator", 31337)
		require.NoError(t, err)
		assert.True(t, ArgsEqual(got.ConstructorArgs, []any{8, big}))
	})
}

func TestMemoryStore(t *testing.T) {
	runRecordStoreSuite(t, NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	saved, err := store.UpsertRecord(ctx, &DeploymentRecord{
		ContractName:    "FundMe",
		ChainID:         4,
		Status:          StatusDeployed,
		ConstructorArgs: []any{"a"},
	})
	require.NoError(t, err)
	saved.ConstructorArgs[0] = "mutated"

	got, err := store.GetRecord(ctx, "FundMe", 4)
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, got.ConstructorArgs)
}
