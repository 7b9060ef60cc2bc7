package service

import (
	"sync"
	"time"

	"tune-fusion/app/logger"
	"tune-fusion/app/model"

	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

// DiscoveryCallback 批次完成后回调外部发现流程（丰富化管线暴露的唯一钩子）
type DiscoveryCallback func(batchID, artistName string)

// BatchService 跟踪艺术家展开批次的聚合完成状态。
// 批次没有独立的表，完成与否每次都从成员任务重新计算。
type BatchService struct {
	db     *gorm.DB
	logger *logger.Logger
	notify *NotifyService

	// 已发出完成信号的批次，保证同一批次只通知一次
	signalled *gocache.Cache

	mu       sync.RWMutex
	callback DiscoveryCallback
}

// NewBatchService 创建批次跟踪服务
func NewBatchService(db *gorm.DB, log *logger.Logger, notify *NotifyService) *BatchService {
	return &BatchService{
		db:        db,
		logger:    log,
		notify:    notify,
		signalled: gocache.New(24*time.Hour, 1*time.Hour),
	}
}

// SetDiscoveryCallback 注册发现流程回调
func (s *BatchService) SetDiscoveryCallback(cb DiscoveryCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// CheckBatchCompletion 检查批次是否完成，完成则恰好发出一次信号。
// 任何成员任务状态变化时都可以（重复）调用。
func (s *BatchService) CheckBatchCompletion(batchID string) {
	if batchID == "" {
		return
	}

	var active int64
	if err := s.db.Model(&model.DownloadJob{}).
		Where("batch_id = ? AND status IN ?", batchID, model.ActiveStatuses()).
		Count(&active).Error; err != nil {
		s.logger.Errorf("统计批次活跃任务失败: batch=%s, err=%v", batchID, err)
		return
	}

	if active > 0 {
		return
	}

	s.signalCompletion(batchID, false)
}

// ForceCompleteExpired 对超时批次强制发出完成信号，即使仍有任务在途，
// 避免一次艺术家下载把发现流程卡死
func (s *BatchService) ForceCompleteExpired(timeout time.Duration) bool {
	cutoff := time.Now().Add(-timeout)

	// 仍有活跃任务且最早创建时间已超时的批次
	var batchIDs []string
	err := s.db.Model(&model.DownloadJob{}).
		Where("batch_id <> '' AND status IN ?", model.ActiveStatuses()).
		Group("batch_id").
		Having("MIN(created_at) < ?", cutoff).
		Pluck("batch_id", &batchIDs).Error
	if err != nil {
		s.logger.Errorf("查询超时批次失败: %v", err)
		return false
	}

	for _, id := range batchIDs {
		s.logger.Warnf("批次超时，强制完成: batch=%s", id)
		s.signalCompletion(id, true)
	}
	return len(batchIDs) > 0
}

// signalCompletion 发出完成信号，go-cache 的 Add 只会成功一次，
// 并发重复调用也不会重复通知
func (s *BatchService) signalCompletion(batchID string, forced bool) {
	if err := s.signalled.Add(batchID, true, gocache.DefaultExpiration); err != nil {
		// 已经发过信号
		return
	}

	var jobs []model.DownloadJob
	if err := s.db.Where("batch_id = ?", batchID).Find(&jobs).Error; err != nil {
		s.logger.Errorf("查询批次任务失败: batch=%s, err=%v", batchID, err)
		return
	}

	var artistName string
	var completed, failed int64
	for _, j := range jobs {
		if artistName == "" && j.ArtistName != "" {
			artistName = j.ArtistName
		}
		switch j.Status {
		case model.JobStatusCompleted:
			completed++
		case model.JobStatusFailed:
			failed++
		}
	}

	s.logger.Infof("批次完成: batch=%s, artist=%s, 总数=%d, 完成=%d, 失败=%d, 强制=%v",
		batchID, artistName, len(jobs), completed, failed, forced)

	s.notify.NotifyBatchComplete(batchID, artistName, int64(len(jobs)), completed, failed)

	s.mu.RLock()
	cb := s.callback
	s.mu.RUnlock()
	if cb != nil {
		go cb(batchID, artistName)
	}
}
