package service

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"tune-fusion/app/config"
	"tune-fusion/app/logger"
	"tune-fusion/app/model"
	"tune-fusion/app/utils/lidarr"
	"tune-fusion/app/utils/textmatch"

	"gorm.io/gorm"
)

// providerQueue Lidarr 侧的队列与历史只读视图
type providerQueue interface {
	IsConfigured() bool
	GetQueue() ([]lidarr.QueueItem, error)
	GetRecentCompleted(windowMinutes int) ([]lidarr.HistoryRecord, error)
	RemoveQueueItem(id int64) error
}

// ManagerStatus 对账循环的运行状态
type ManagerStatus struct {
	Running    bool      `json:"running"`
	EmptyTicks int       `json:"empty_ticks"`
	LastTick   time.Time `json:"last_tick"`
}

// ReconcileService 对账循环。账本、Lidarr 队列和本地音乐库三个事实来源
// 没有一个单独可信：回调会丢、任务会卡、名称会对不上。循环周期性地把
// 任务状态和三方证据对齐，每 30 秒跑一轮，连续空转若干轮后自动停下，
// 新任务创建时再被唤醒。状态只会向终态推进，不会回退。
type ReconcileService struct {
	db       *gorm.DB
	logger   *logger.Logger
	cfg      *config.Config
	provider providerQueue
	library  *LibraryService
	batches  *BatchService
	failures *FailureService

	// 循环自身的运行状态，全部收在实例里，方便测试多开
	mu         sync.Mutex
	running    bool
	emptyTicks int
	lastTick   time.Time
	stopCh     chan struct{}
}

// NewReconcileService 创建对账服务
func NewReconcileService(
	db *gorm.DB,
	log *logger.Logger,
	cfg *config.Config,
	provider providerQueue,
	library *LibraryService,
	batches *BatchService,
	failures *FailureService,
) *ReconcileService {
	return &ReconcileService{
		db:       db,
		logger:   log,
		cfg:      cfg,
		provider: provider,
		library:  library,
		batches:  batches,
		failures: failures,
	}
}

// Kick 唤醒对账循环，已在运行则什么都不做
func (s *ReconcileService) Kick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	s.emptyTicks = 0
	s.stopCh = make(chan struct{})
	go s.run(s.stopCh)

	s.logger.Info("对账循环已启动")
}

// Stop 停止对账循环
func (s *ReconcileService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
}

// Status 返回循环运行状态
func (s *ReconcileService) Status() ManagerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ManagerStatus{
		Running:    s.running,
		EmptyTicks: s.emptyTicks,
		LastTick:   s.lastTick,
	}
}

// ForceCycle 立即同步执行一轮对账，管理接口用
func (s *ReconcileService) ForceCycle() {
	s.RunTick()
}

// run 自调度循环：每轮跑完再睡，轮与轮之间不会重叠
func (s *ReconcileService) run(stopCh chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		s.RunTick()

		s.mu.Lock()
		idle := s.emptyTicks >= s.cfg.Download.MaxEmptyTicks
		s.mu.Unlock()
		if idle {
			s.logger.Info("连续空转，对账循环进入空闲")
			return
		}

		select {
		case <-stopCh:
			return
		case <-time.After(s.cfg.Download.ReconcileInterval()):
		}
	}
}

// RunTick 执行一轮对账。各步骤严格按序执行，后面的步骤默认前面已经
// 清掉了简单情形。单个任务出错只记日志，不中断整轮。
func (s *ReconcileService) RunTick() {
	started := time.Now()
	worked := false

	// 1. 超时清扫
	if s.sweepStaleJobs() {
		worked = true
	}

	// Lidarr 队列整轮只取一次，给第 3、5 步共用
	var queue []lidarr.QueueItem
	if s.provider != nil && s.provider.IsConfigured() {
		var err error
		queue, err = s.provider.GetQueue()
		if err != nil {
			s.logger.Errorf("获取 Lidarr 队列失败: %v", err)
			queue = nil
		}
	}

	// 2. Lidarr 完成记录对账
	if s.reconcileProviderHistory() {
		worked = true
	}

	// 3. 队列失踪检测
	if queue != nil && s.syncProviderQueue(queue) {
		worked = true
	}

	// 4. 本地库对账（正确性兜底）
	if s.reconcileLibrary() {
		worked = true
	}

	// 5. 卡住的导入清理
	if queue != nil && s.cleanupStuckTransfers(queue) {
		worked = true
	}

	// 批次超时强制完成
	if s.batches != nil && s.batches.ForceCompleteExpired(s.cfg.Download.BatchTimeout()) {
		worked = true
	}

	// 6. 静默检查
	var active int64
	if err := s.db.Model(&model.DownloadJob{}).
		Where("status IN ?", model.ActiveStatuses()).
		Count(&active).Error; err != nil {
		s.logger.Errorf("统计活跃任务失败: %v", err)
	}

	s.mu.Lock()
	if !worked && active == 0 {
		s.emptyTicks++
	} else {
		s.emptyTicks = 0
	}
	s.lastTick = started
	s.mu.Unlock()

	s.logger.Debugf("对账完成: 活跃任务=%d, 有进展=%v, 耗时=%v", active, worked, time.Since(started))
}

// sweepStaleJobs 把超时的 processing 任务标记为失败
func (s *ReconcileService) sweepStaleJobs() bool {
	cutoff := time.Now().Add(-s.cfg.Download.StaleTimeout())

	var stale []model.DownloadJob
	if err := s.db.Where("status = ? AND created_at < ?", model.JobStatusProcessing, cutoff).
		Find(&stale).Error; err != nil {
		s.logger.Errorf("查询超时任务失败: %v", err)
		return false
	}

	for i := range stale {
		job := &stale[i]
		job.SetFailed(fmt.Sprintf("下载超时：超过 %d 分钟未完成", s.cfg.Download.StaleTimeoutMinutes))
		if err := s.db.Save(job).Error; err != nil {
			s.logger.Errorf("标记超时任务失败: id=%s, err=%v", job.ID, err)
			continue
		}

		s.logger.Warnf("任务超时标记为失败: id=%s, subject=%s", job.ID, job.Subject)

		if s.failures != nil && job.Type == model.JobTypeAlbum {
			_ = s.failures.RecordUnavailable(UnavailableRecord{
				UserID:     job.UserID,
				AlbumMBID:  job.TargetID,
				ArtistName: job.ArtistName,
				AlbumName:  job.AlbumTitle,
			})
		}
		if s.batches != nil {
			s.batches.CheckBatchCompletion(job.BatchID)
		}
	}

	return len(stale) > 0
}

// reconcileProviderHistory 用 Lidarr 最近的导入完成记录补齐丢失的回调
func (s *ReconcileService) reconcileProviderHistory() bool {
	if s.provider == nil || !s.provider.IsConfigured() {
		return false
	}

	records, err := s.provider.GetRecentCompleted(s.cfg.Download.CompletedWindowMinutes)
	if err != nil {
		s.logger.Errorf("获取 Lidarr 完成记录失败: %v", err)
		return false
	}

	worked := false
	scanNeeded := false
	for i := range records {
		rec := &records[i]

		query := s.db.Where("status IN ?", model.ActiveStatuses())
		switch {
		case rec.Album != nil && rec.Album.ForeignAlbumID != "" && rec.DownloadID != "":
			query = query.Where("target_id = ? OR provider_ref = ?", rec.Album.ForeignAlbumID, rec.DownloadID)
		case rec.Album != nil && rec.Album.ForeignAlbumID != "":
			query = query.Where("target_id = ?", rec.Album.ForeignAlbumID)
		case rec.DownloadID != "":
			query = query.Where("provider_ref = ?", rec.DownloadID)
		default:
			continue
		}

		var jobs []model.DownloadJob
		if err := query.Find(&jobs).Error; err != nil {
			s.logger.Errorf("匹配完成记录失败: download=%s, err=%v", rec.DownloadID, err)
			continue
		}

		for j := range jobs {
			job := &jobs[j]
			job.SetCompleted()
			if err := s.db.Save(job).Error; err != nil {
				s.logger.Errorf("标记任务完成失败: id=%s, err=%v", job.ID, err)
				continue
			}
			worked = true
			s.logger.Infof("Lidarr 导入完成，任务结束: id=%s, subject=%s", job.ID, job.Subject)

			if s.batches != nil {
				s.batches.CheckBatchCompletion(job.BatchID)
			}
			if job.PathClass != model.PathClassDiscovery {
				scanNeeded = true
			}
		}
	}

	// 渠道已经交付，让媒体库追上
	if scanNeeded && s.library != nil {
		s.library.EnqueueScan()
	}

	return worked
}

// syncProviderQueue 检测从 Lidarr 队列消失却没有终结事件的传输
// （用户手动取消，或完成事件静默丢失），直接就地了结。
func (s *ReconcileService) syncProviderQueue(queue []lidarr.QueueItem) bool {
	inQueue := make(map[string]bool, len(queue))
	for i := range queue {
		inQueue[strconv.FormatInt(queue[i].AlbumID, 10)] = true
		if queue[i].DownloadID != "" {
			inQueue[queue[i].DownloadID] = true
		}
	}

	// 给派发后的入队留出余量，避免把还没进队列的任务误判为失踪
	grace := time.Now().Add(-5 * time.Minute)

	var jobs []model.DownloadJob
	if err := s.db.Where("status = ? AND channel = ? AND provider_ref <> '' AND updated_at < ?",
		model.JobStatusProcessing, model.ChannelLidarr, grace).
		Find(&jobs).Error; err != nil {
		s.logger.Errorf("查询在途任务失败: %v", err)
		return false
	}

	worked := false
	for i := range jobs {
		job := &jobs[i]
		if inQueue[job.ProviderRef] {
			continue
		}

		// 完成记录对账（第 2 步）已经处理过有历史事件的情况，
		// 走到这里说明传输无声无息地没了
		job.SetCompleted()
		if err := s.db.Save(job).Error; err != nil {
			s.logger.Errorf("了结失踪传输失败: id=%s, err=%v", job.ID, err)
			continue
		}
		worked = true
		s.logger.Warnf("传输已从队列消失，任务就地了结: id=%s, subject=%s, ref=%s",
			job.ID, job.Subject, job.ProviderRef)

		if s.batches != nil {
			s.batches.CheckBatchCompletion(job.BatchID)
		}
	}

	return worked
}

// reconcileLibrary 本地库对账。元数据源之间的名称/MBID 差异经常让
// 前两步失效，曲目实际已经在库里的任务在这里兜底完成。
// 只扫描仍活跃的任务，已完成的不会被重新打开。
func (s *ReconcileService) reconcileLibrary() bool {
	if s.library == nil {
		return false
	}

	var jobs []model.DownloadJob
	if err := s.db.Where("type = ? AND status IN ?", model.JobTypeAlbum, model.ActiveStatuses()).
		Find(&jobs).Error; err != nil {
		s.logger.Errorf("查询活跃任务失败: %v", err)
		return false
	}

	worked := false
	for i := range jobs {
		job := &jobs[i]

		match, err := s.library.FindAlbumMatch(job.ArtistName, job.OriginalArtist, job.AlbumTitle)
		if err != nil {
			// 单个任务的对账异常不中断整轮
			s.logger.Errorf("库内匹配出错: id=%s, err=%v", job.ID, err)
			continue
		}
		if match == nil {
			continue
		}

		job.SetCompleted()
		if err := s.db.Save(job).Error; err != nil {
			s.logger.Errorf("标记任务完成失败: id=%s, err=%v", job.ID, err)
			continue
		}
		worked = true
		s.logger.Infof("本地库已有曲目，任务完成: id=%s, subject=%s, 曲目=%d, 模糊=%v",
			job.ID, job.Subject, match.TrackCount, match.Fuzzy)

		if s.batches != nil {
			s.batches.CheckBatchCompletion(job.BatchID)
		}
	}

	return worked
}

// cleanupStuckTransfers 清理卡在导入阶段的传输：从 Lidarr 队列移除
// （不拉黑，让它换一个发行版本重试），账本侧任务累加重试计数、
// 保持在途，不标记失败。
func (s *ReconcileService) cleanupStuckTransfers(queue []lidarr.QueueItem) bool {
	worked := false
	for i := range queue {
		item := &queue[i]
		if !item.IsImportBlocked() {
			continue
		}

		if err := s.provider.RemoveQueueItem(item.ID); err != nil {
			s.logger.Errorf("移除卡住的队列项失败: id=%d, title=%s, err=%v", item.ID, item.Title, err)
			continue
		}
		worked = true
		s.logger.Warnf("已移除卡住的传输: id=%d, title=%s", item.ID, item.Title)

		// 释放的标题按子串回查账本，对应任务累加重试
		var jobs []model.DownloadJob
		if err := s.db.Where("status IN ?", model.ActiveStatuses()).Find(&jobs).Error; err != nil {
			s.logger.Errorf("查询活跃任务失败: %v", err)
			continue
		}
		for j := range jobs {
			job := &jobs[j]
			if job.AlbumTitle == "" || !textmatch.ContainsNormalized(item.Title, job.AlbumTitle) {
				continue
			}
			job.IncrementRetry("导入被阻塞，已从 Lidarr 队列移除，等待重新搜索")
			if err := s.db.Save(job).Error; err != nil {
				s.logger.Errorf("累加重试计数失败: id=%s, err=%v", job.ID, err)
				continue
			}
			s.logger.Infof("任务重试计数 +1: id=%s, subject=%s, retry=%d", job.ID, job.Subject, job.RetryCount)
		}
	}

	return worked
}
