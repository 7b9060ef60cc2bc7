package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tune-fusion/app/logger"
	"tune-fusion/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newBatchService(t *testing.T, db *gorm.DB) *BatchService {
	t.Helper()
	cfg := newTestConfig()
	log := logger.NewNop()
	return NewBatchService(db, log, NewNotifyService(cfg, log))
}

func TestCheckBatchCompletionWaitsForActiveJobs(t *testing.T) {
	db := newTestDB(t)
	svc := newBatchService(t, db)

	var signals atomic.Int32
	svc.SetDiscoveryCallback(func(batchID, artistName string) {
		signals.Add(1)
	})

	seedJob(t, db, func(j *model.DownloadJob) {
		j.BatchID = "batch-1"
		j.Status = model.JobStatusCompleted
	})
	active := seedJob(t, db, func(j *model.DownloadJob) {
		j.BatchID = "batch-1"
		j.Status = model.JobStatusProcessing
	})

	svc.CheckBatchCompletion("batch-1")
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, signals.Load())

	// 最后一个成员到达终态后批次完成
	require.NoError(t, db.Model(&model.DownloadJob{}).Where("id = ?", active.ID).
		Update("status", model.JobStatusFailed).Error)
	svc.CheckBatchCompletion("batch-1")

	require.Eventually(t, func() bool {
		return signals.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCheckBatchCompletionSignalsExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	svc := newBatchService(t, db)

	var signals atomic.Int32
	var gotArtist atomic.Value
	svc.SetDiscoveryCallback(func(batchID, artistName string) {
		signals.Add(1)
		gotArtist.Store(artistName)
	})

	seedJob(t, db, func(j *model.DownloadJob) {
		j.BatchID = "batch-1"
		j.Status = model.JobStatusCompleted
	})
	seedJob(t, db, func(j *model.DownloadJob) {
		j.BatchID = "batch-1"
		j.Status = model.JobStatusFailed
	})

	// 成员任务的状态变化可能并发触发检查
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.CheckBatchCompletion("batch-1")
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return signals.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, signals.Load())
	assert.Equal(t, "Blink-182", gotArtist.Load())
}

func TestCheckBatchCompletionIgnoresEmptyBatch(t *testing.T) {
	db := newTestDB(t)
	svc := newBatchService(t, db)

	var signals atomic.Int32
	svc.SetDiscoveryCallback(func(batchID, artistName string) {
		signals.Add(1)
	})

	// 无批次归属的任务不触发任何信号
	svc.CheckBatchCompletion("")
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, signals.Load())
}

func TestForceCompleteExpired(t *testing.T) {
	db := newTestDB(t)
	svc := newBatchService(t, db)

	var signals atomic.Int32
	svc.SetDiscoveryCallback(func(batchID, artistName string) {
		signals.Add(1)
	})

	// 超时批次：最早成员创建于 3 小时前，仍有任务在途
	seedJob(t, db, func(j *model.DownloadJob) {
		j.BatchID = "batch-old"
		j.Status = model.JobStatusProcessing
		j.CreatedAt = time.Now().Add(-3 * time.Hour)
	})
	// 新批次不受影响
	seedJob(t, db, func(j *model.DownloadJob) {
		j.BatchID = "batch-new"
		j.Status = model.JobStatusProcessing
	})

	assert.True(t, svc.ForceCompleteExpired(2*time.Hour))

	require.Eventually(t, func() bool {
		return signals.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// 重复调用不会重复通知
	svc.ForceCompleteExpired(2 * time.Hour)
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, signals.Load())
}

func TestForceCompleteExpiredNothingToDo(t *testing.T) {
	db := newTestDB(t)
	svc := newBatchService(t, db)

	seedJob(t, db, func(j *model.DownloadJob) {
		j.BatchID = "batch-new"
		j.Status = model.JobStatusProcessing
	})

	assert.False(t, svc.ForceCompleteExpired(2*time.Hour))
}
