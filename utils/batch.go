package utils

import (
	"context"
	"sync"
)

// BatchConfig 批量操作配置
type BatchConfig struct {
	// BatchSize 批量大小
	BatchSize int
	// Concurrency 并发数量
	Concurrency int
	// OnProgress 进度回调函数
	OnProgress func(progress BatchProgress)
}

// BatchProgress 批量操作进度
type BatchProgress struct {
	// Completed 已完成数量
	Completed int
	// Total 总数量
	Total int
	// Percentage 进度百分比（0-100）
	Percentage int
	// Success 成功数量
	Success int
	// Failed 失败数量
	Failed int
}

// DefaultBatchConfig 返回默认批量配置
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		BatchSize:   50,
		Concurrency: 5,
		OnProgress:  nil,
	}
}

// BatchResult 批量操作结果
type BatchResult[T any] struct {
	// Results 成功的结果
	Results []T
	// Errors 失败的项目
	Errors []BatchError
	// Total 总数量
	Total int
	// Success 成功数量
	Success int
	// Failed 失败数量
	Failed int
}

// BatchError 批量操作错误
type BatchError struct {
	// Index 项目索引
	Index int
	// Error 错误信息
	Error error
}

// BatchExecute 批量执行
//
// 对一组输入分批并发调用执行函数，返回成功和失败的结果列表。
// 单项失败不会中止整批，失败项记录在 Errors 中（按输入索引）。
//
// 示例：
//
//	requests := []*transfer.TransferRequest{req1, req2, req3}
//	result, err := BatchExecute(ctx, requests, func(ctx context.Context, req *transfer.TransferRequest, index int) (*types.SubmissionOutcome, error) {
//	    return svc.Transfer(ctx, req)
//	}, DefaultBatchConfig())
func BatchExecute[T any, R any](
	ctx context.Context,
	items []T,
	executeFn func(ctx context.Context, item T, index int) (R, error),
	config *BatchConfig,
) (*BatchResult[R], error) {
	if config == nil {
		config = DefaultBatchConfig()
	}

	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 5
	}

	results := make([]R, 0, len(items))
	errors := make([]BatchError, 0)

	// 结果列表和计数器共用一把锁；进度快照在临界区内取，
	// 回调在临界区外调用
	var mu sync.Mutex
	completed := 0
	success := 0
	failed := 0

	record := func(idx int, result R, err error) {
		mu.Lock()
		if err != nil {
			errors = append(errors, BatchError{
				Index: idx,
				Error: err,
			})
			failed++
		} else {
			results = append(results, result)
			success++
		}
		completed++
		progress := BatchProgress{
			Completed:  completed,
			Total:      len(items),
			Percentage: (completed * 100) / len(items),
			Success:    success,
			Failed:     failed,
		}
		mu.Unlock()

		if config.OnProgress != nil {
			config.OnProgress(progress)
		}
	}

	// 分批处理
	batches := BatchArray(items, config.BatchSize)

	for batchIdx, batch := range batches {
		// 并发处理当前批次
		var wg sync.WaitGroup
		sem := make(chan struct{}, config.Concurrency)

		for i, item := range batch {
			wg.Add(1)
			globalIndex := batchIdx*config.BatchSize + i
			go func(idx int, batchItem T) {
				defer wg.Done()

				// 获取信号量
				sem <- struct{}{}
				defer func() { <-sem }()

				// 执行操作
				result, err := executeFn(ctx, batchItem, idx)
				record(idx, result, err)
			}(globalIndex, item)
		}

		wg.Wait()
	}

	return &BatchResult[R]{
		Results: results,
		Errors:  errors,
		Total:   len(items),
		Success: success,
		Failed:  failed,
	}, nil
}

// BatchArray 将数组分批次
func BatchArray[T any](array []T, batchSize int) [][]T {
	batches := make([][]T, 0)
	for i := 0; i < len(array); i += batchSize {
		end := i + batchSize
		if end > len(array) {
			end = len(array)
		}
		batches = append(batches, array[i:end])
	}
	return batches
}
