package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veltis/wallet-sdk-go/coinselect"
	"github.com/veltis/wallet-sdk-go/types"
)

var testOwner = []byte("aaaaaaaaaaaaaaaaaaaa")

func seedRecords(s RecordStore, amounts ...uint64) {
	for i, amount := range amounts {
		s.Put(&types.SpendableRecord{
			ID:     "0xab:" + string(rune('0'+i)),
			Owner:  testOwner,
			Amount: amount,
			State:  types.StateAvailable,
		})
	}
}

func TestRecordStoreSelectAndLock(t *testing.T) {
	s := NewRecordStore()
	seedRecords(s, 50, 5, 10)

	result, err := s.SelectAndLock(testOwner, "", 12)
	require.NoError(t, err)

	// 升序贪心：[5, 10]，找零 3
	require.Len(t, result.Selected, 2)
	assert.Equal(t, uint64(5), result.Selected[0].Amount)
	assert.Equal(t, uint64(10), result.Selected[1].Amount)
	assert.Equal(t, uint64(15), result.Total)
	assert.Equal(t, uint64(3), result.Change)

	// 选中记录进入 PENDING，不再出现在可用列表中
	for _, r := range result.Selected {
		assert.Equal(t, types.StatePending, r.State)
	}
	available := s.Available(testOwner, "")
	require.Len(t, available, 1)
	assert.Equal(t, uint64(50), available[0].Amount)
}

func TestRecordStoreInsufficientLocksNothing(t *testing.T) {
	s := NewRecordStore()
	seedRecords(s, 5, 10)

	_, err := s.SelectAndLock(testOwner, "", 100)
	require.Error(t, err)

	var insufficient *coinselect.InsufficientFunds
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, uint64(100), insufficient.Required)
	assert.Equal(t, uint64(15), insufficient.Available)
	assert.Equal(t, uint64(85), insufficient.Shortfall)

	// 不足时一条记录都不锁
	assert.Len(t, s.Available(testOwner, ""), 2)
}

func TestRecordStoreTokenTypeIsolation(t *testing.T) {
	s := NewRecordStore()
	s.Put(
		&types.SpendableRecord{ID: "n:0", Owner: testOwner, Amount: 100, State: types.StateAvailable},
		&types.SpendableRecord{ID: "t:0", Owner: testOwner, TokenType: "aa11", Amount: 100, State: types.StateAvailable},
	)

	// 原生币选取不会碰到其他资产类型的记录
	result, err := s.SelectAndLock(testOwner, "", 100)
	require.NoError(t, err)
	require.Len(t, result.Selected, 1)
	assert.Equal(t, "n:0", result.Selected[0].ID)

	available := s.Available(testOwner, "aa11")
	require.Len(t, available, 1)
	assert.Equal(t, "t:0", available[0].ID)
}

func TestRecordStoreTransitions(t *testing.T) {
	s := NewRecordStore()
	seedRecords(s, 10)

	result, err := s.SelectAndLock(testOwner, "", 10)
	require.NoError(t, err)
	id := result.Selected[0].ID

	// PENDING → AVAILABLE（回滚）
	require.NoError(t, s.Release([]string{id}))
	assert.Len(t, s.Available(testOwner, ""), 1)

	// 再锁一次然后确认花费
	_, err = s.SelectAndLock(testOwner, "", 10)
	require.NoError(t, err)
	require.NoError(t, s.MarkSpent([]string{id}))
	assert.Empty(t, s.Available(testOwner, ""))

	// SPENT 记录不能再迁移
	err = s.Release([]string{id})
	var notPending *ErrNotPending
	require.True(t, errors.As(err, &notPending))
	assert.Equal(t, types.StateSpent, notPending.State)
}

// 一批迁移要么全部生效要么全不生效
func TestRecordStoreTransitionAllOrNothing(t *testing.T) {
	s := NewRecordStore()
	seedRecords(s, 5, 10)

	result, err := s.SelectAndLock(testOwner, "", 15)
	require.NoError(t, err)
	require.Len(t, result.Selected, 2)

	ids := []string{result.Selected[0].ID, "no-such-record"}
	err = s.MarkSpent(ids)
	require.Error(t, err)

	// 第一条记录仍是 PENDING，没有被部分标记
	require.NoError(t, s.Release([]string{result.Selected[0].ID, result.Selected[1].ID}))
}

// 并发构建不可能选中同一条记录
func TestRecordStoreConcurrentSelectNoDoubleSpend(t *testing.T) {
	s := NewRecordStore()
	const n = 32
	for i := 0; i < n; i++ {
		s.Put(&types.SpendableRecord{
			ID:     "c:" + string(rune('a'+i%26)) + string(rune('a'+i/26)),
			Owner:  testOwner,
			Amount: 10,
			State:  types.StateAvailable,
		})
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.SelectAndLock(testOwner, "", 10)
			if err != nil {
				return
			}
			mu.Lock()
			for _, r := range result.Selected {
				seen[r.ID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	for id, count := range seen {
		assert.Equal(t, 1, count, "record %s selected %d times", id, count)
	}
}

func TestFeeTokenStoreSelectByCurrentValue(t *testing.T) {
	s := NewFeeTokenStore()
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// 初始价值与速率不同，at 时刻的当前价值决定排序
	s.Put(
		&types.FeeToken{ID: "slow", Owner: testOwner, InitialValue: 50, CreatedAt: created, Rate: 0, Capacity: 100, State: types.StateAvailable},
		&types.FeeToken{ID: "fast", Owner: testOwner, InitialValue: 0, CreatedAt: created, Rate: 10, Capacity: 100, State: types.StateAvailable},
	)

	// 10 秒后 fast 价值 100（封顶）> slow 50：升序先选 slow
	at := created.Add(10 * time.Second)
	result, err := s.SelectAndLock(testOwner, 40, at)
	require.NoError(t, err)
	require.Len(t, result.Selected, 1)
	assert.Equal(t, "slow", result.Selected[0].ID)
}

func TestFeeTokenStoreZeroFee(t *testing.T) {
	s := NewFeeTokenStore()

	result, err := s.SelectAndLock(testOwner, 0, time.Now())
	require.NoError(t, err)
	assert.Empty(t, result.Selected)
	assert.Zero(t, result.Total)
}

// 费用为正但没有任何可用代币：平凡的空选取，不是不足
func TestFeeTokenStorePositiveFeeNoTokens(t *testing.T) {
	s := NewFeeTokenStore()

	result, err := s.SelectAndLock(testOwner, 10, time.Now())
	require.NoError(t, err)
	assert.Empty(t, result.Selected)
	assert.Zero(t, result.Total)
	assert.Zero(t, result.Change)
}

// 其他地址的代币不算可用：仍然是平凡的空选取
func TestFeeTokenStorePositiveFeeOnlyForeignTokens(t *testing.T) {
	s := NewFeeTokenStore()
	s.Put(&types.FeeToken{
		ID: "foreign", Owner: []byte("zzzzzzzzzzzzzzzzzzzz"), InitialValue: 100,
		CreatedAt: time.Now(), Capacity: 100, State: types.StateAvailable,
	})

	result, err := s.SelectAndLock(testOwner, 10, time.Now())
	require.NoError(t, err)
	assert.Empty(t, result.Selected)
}

func TestFeeTokenStoreBalance(t *testing.T) {
	s := NewFeeTokenStore()
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.Put(
		&types.FeeToken{ID: "a", Owner: testOwner, InitialValue: 5, CreatedAt: created, Rate: 1, Capacity: 50, State: types.StateAvailable},
		&types.FeeToken{ID: "b", Owner: testOwner, InitialValue: 20, CreatedAt: created, Rate: 0, Capacity: 50, State: types.StateAvailable},
	)

	at := created.Add(10 * time.Second)
	assert.Equal(t, uint64(15+20), s.Balance(testOwner, at))

	// 锁定后不再计入余额
	_, err := s.SelectAndLock(testOwner, 15, at)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), s.Balance(testOwner, at))
}

func TestFeeTokenStoreConfirmAndRelease(t *testing.T) {
	s := NewFeeTokenStore()
	created := time.Now()
	s.Put(&types.FeeToken{ID: "x", Owner: testOwner, InitialValue: 30, CreatedAt: created, Capacity: 30, State: types.StateAvailable})

	result, err := s.SelectAndLock(testOwner, 10, created)
	require.NoError(t, err)
	require.Len(t, result.Selected, 1)

	require.NoError(t, s.Release([]string{"x"}))
	assert.Equal(t, uint64(30), s.Balance(testOwner, created))

	_, err = s.SelectAndLock(testOwner, 10, created)
	require.NoError(t, err)
	require.NoError(t, s.Confirm([]string{"x"}))
	assert.Zero(t, s.Balance(testOwner, created))

	// SPENT 代币不能回滚
	assert.Error(t, s.Release([]string{"x"}))
}
