package service

import (
	"time"

	"tune-fusion/app/config"
	"tune-fusion/app/logger"
	"tune-fusion/app/model"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// RetentionService 定期清理过期的终态任务记录
type RetentionService struct {
	db     *gorm.DB
	logger *logger.Logger
	cfg    *config.Config
	cron   *cron.Cron
}

// NewRetentionService 创建保留策略服务
func NewRetentionService(db *gorm.DB, log *logger.Logger, cfg *config.Config) *RetentionService {
	return &RetentionService{
		db:     db,
		logger: log,
		cfg:    cfg,
		cron:   cron.New(),
	}
}

// Start 启动定时清理，每天凌晨 3 点执行
func (s *RetentionService) Start() error {
	if _, err := s.cron.AddFunc("0 3 * * *", s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("任务保留清理已启动")
	return nil
}

// Stop 停止定时清理
func (s *RetentionService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("任务保留清理已停止")
}

// Sweep 删除超过保留期的终态任务。活跃任务永远不会被清理。
func (s *RetentionService) Sweep() {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.Download.RetentionDays)

	result := s.db.Where("status IN ? AND completed_at < ?",
		[]model.JobStatus{model.JobStatusCompleted, model.JobStatusFailed}, cutoff).
		Delete(&model.DownloadJob{})
	if result.Error != nil {
		s.logger.Errorf("清理过期任务失败: %v", result.Error)
		return
	}

	if result.RowsAffected > 0 {
		s.logger.Infof("清理了 %d 个过期任务（超过 %d 天）", result.RowsAffected, s.cfg.Download.RetentionDays)
	}

	// 不可用专辑记录保留一年，过期的对发现排序已无意义
	oldUnavailable := time.Now().AddDate(-1, 0, 0)
	result = s.db.Where("updated_at < ?", oldUnavailable).Delete(&model.UnavailableAlbum{})
	if result.Error != nil {
		s.logger.Errorf("清理过期不可用记录失败: %v", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		s.logger.Infof("清理了 %d 条过期的不可用专辑记录", result.RowsAffected)
	}
}
