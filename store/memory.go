package store

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/veltis/wallet-sdk-go/coinselect"
	"github.com/veltis/wallet-sdk-go/types"
)

// memoryRecordStore 互斥锁守护的内存记录存储
type memoryRecordStore struct {
	mu      sync.Mutex
	records map[string]*types.SpendableRecord
}

// NewRecordStore 创建内存记录存储
func NewRecordStore() RecordStore {
	return &memoryRecordStore{
		records: make(map[string]*types.SpendableRecord),
	}
}

// Put 写入或覆盖记录
func (s *memoryRecordStore) Put(records ...*types.SpendableRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range records {
		clone := *record
		s.records[record.ID] = &clone
	}
}

// Available 返回某地址、某资产类型下所有 AVAILABLE 记录（按金额升序）
func (s *memoryRecordStore) Available(owner []byte, tokenType string) []*types.SpendableRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.availableLocked(owner, tokenType)
}

// availableLocked 调用方必须已持有 s.mu，返回记录副本
func (s *memoryRecordStore) availableLocked(owner []byte, tokenType string) []*types.SpendableRecord {
	var available []*types.SpendableRecord
	for _, record := range s.records {
		if record.State != types.StateAvailable {
			continue
		}
		if !bytes.Equal(record.Owner, owner) || record.TokenType != tokenType {
			continue
		}
		clone := *record
		available = append(available, &clone)
	}
	sortRecordsByAmount(available)
	return available
}

// SelectAndLock 原子的选择加锁
//
// 读取、选币、锁定在同一个临界区内完成：两个并发构建不可能选中同一条记录。
// 不足时不锁定任何记录，原样返回 *coinselect.InsufficientFunds。
func (s *memoryRecordStore) SelectAndLock(owner []byte, tokenType string, amount uint64) (*coinselect.Result[*types.SpendableRecord], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. 读取可用记录（升序）
	available := s.availableLocked(owner, tokenType)

	// 2. 选币
	result, err := coinselect.Select(available, func(r *types.SpendableRecord) uint64 {
		return r.Amount
	}, amount)
	if err != nil {
		return nil, err
	}

	// 3. 锁定选中记录（AVAILABLE → PENDING）
	for _, selected := range result.Selected {
		s.records[selected.ID].State = types.StatePending
		selected.State = types.StatePending
	}

	return result, nil
}

// Release 将 PENDING 记录回滚为 AVAILABLE
func (s *memoryRecordStore) Release(ids []string) error {
	return s.transition(ids, types.StateAvailable)
}

// MarkSpent 将 PENDING 记录标记为 SPENT
func (s *memoryRecordStore) MarkSpent(ids []string) error {
	return s.transition(ids, types.StateSpent)
}

// transition 在单个临界区内完成一批 PENDING 记录的状态迁移
func (s *memoryRecordStore) transition(ids []string, to types.RecordState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 先整体校验再迁移，保证要么全部成功要么全部不动
	for _, id := range ids {
		record, ok := s.records[id]
		if !ok {
			return &ErrNotPending{ID: id}
		}
		if record.State != types.StatePending {
			return &ErrNotPending{ID: id, State: record.State}
		}
	}
	for _, id := range ids {
		s.records[id].State = to
	}
	return nil
}

// memoryFeeTokenStore 互斥锁守护的内存费用代币存储
type memoryFeeTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*types.FeeToken
}

// NewFeeTokenStore 创建内存费用代币存储
func NewFeeTokenStore() FeeTokenStore {
	return &memoryFeeTokenStore{
		tokens: make(map[string]*types.FeeToken),
	}
}

// Put 写入或覆盖费用代币
func (s *memoryFeeTokenStore) Put(tokens ...*types.FeeToken) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, token := range tokens {
		clone := *token
		s.tokens[token.ID] = &clone
	}
}

// SelectAndLock 原子地按当前价值升序选取并锁定费用代币
func (s *memoryFeeTokenStore) SelectAndLock(owner []byte, fee uint64, at time.Time) (*coinselect.Result[*types.FeeToken], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. 读取可用代币，按 at 时刻的当前价值升序排序
	var available []*types.FeeToken
	for _, token := range s.tokens {
		if token.State != types.StateAvailable || !bytes.Equal(token.Owner, owner) {
			continue
		}
		clone := *token
		available = append(available, &clone)
	}

	// 没有可用代币时返回平凡的空选取（即使费用为正，也不视为不足）
	if len(available) == 0 {
		return &coinselect.Result[*types.FeeToken]{}, nil
	}

	sort.Slice(available, func(i, j int) bool {
		vi, vj := available[i].ValueAt(at), available[j].ValueAt(at)
		if vi != vj {
			return vi < vj
		}
		return available[i].ID < available[j].ID
	})

	// 2. 选币（fee 为 0 时得到平凡的空选取）
	result, err := coinselect.Select(available, func(t *types.FeeToken) uint64 {
		return t.ValueAt(at)
	}, fee)
	if err != nil {
		return nil, err
	}

	// 3. 锁定选中代币
	for _, selected := range result.Selected {
		s.tokens[selected.ID].State = types.StatePending
		selected.State = types.StatePending
	}

	return result, nil
}

// Release 将 PENDING 代币回滚为 AVAILABLE
func (s *memoryFeeTokenStore) Release(ids []string) error {
	return s.transition(ids, types.StateAvailable)
}

// Confirm 将 PENDING 代币标记为 SPENT
func (s *memoryFeeTokenStore) Confirm(ids []string) error {
	return s.transition(ids, types.StateSpent)
}

// transition 在单个临界区内完成一批 PENDING 代币的状态迁移
func (s *memoryFeeTokenStore) transition(ids []string, to types.RecordState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		token, ok := s.tokens[id]
		if !ok {
			return &ErrNotPending{ID: id}
		}
		if token.State != types.StatePending {
			return &ErrNotPending{ID: id, State: token.State}
		}
	}
	for _, id := range ids {
		s.tokens[id].State = to
	}
	return nil
}

// Balance 某地址所有 AVAILABLE 代币在 at 时刻的总价值
func (s *memoryFeeTokenStore) Balance(owner []byte, at time.Time) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total uint64
	for _, token := range s.tokens {
		if token.State != types.StateAvailable || !bytes.Equal(token.Owner, owner) {
			continue
		}
		total += token.ValueAt(at)
	}
	return total
}
