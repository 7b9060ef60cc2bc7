package service

import (
	"fmt"
	"strings"

	"tune-fusion/app/logger"
	"tune-fusion/app/model"
	"tune-fusion/app/utils/lidarr"

	"gorm.io/gorm"
)

// slskdChannel 点对点下载渠道
type slskdChannel interface {
	IsEnabled() bool
	StartDownload(artist, album, targetID string, userID uint) (string, error)
}

// lidarrChannel 集中式下载渠道
type lidarrChannel interface {
	IsConfigured() bool
	LookupAlbum(foreignAlbumID string) (*lidarr.Album, error)
	SearchAlbum(albumID int64) (string, error)
}

// DispatchService 把账本任务派发到下载渠道。调用方不等待结果，
// 下载是否完成只能由对账循环在之后观察到。
type DispatchService struct {
	db     *gorm.DB
	logger *logger.Logger
	slskd  slskdChannel
	lidarr lidarrChannel
}

// NewDispatchService 创建派发服务
func NewDispatchService(db *gorm.DB, log *logger.Logger, slskd slskdChannel, lidarr lidarrChannel) *DispatchService {
	return &DispatchService{
		db:     db,
		logger: log,
		slskd:  slskd,
		lidarr: lidarr,
	}
}

// HasChannel 是否有可用的下载渠道
func (s *DispatchService) HasChannel() bool {
	if s.slskd != nil && s.slskd.IsEnabled() {
		return true
	}
	return s.lidarr != nil && s.lidarr.IsConfigured()
}

// Dispatch 派发单个任务。派发失败只记日志，任务保持 processing，
// 由对账循环的超时清扫收尾——创建路径上没有同步失败。
func (s *DispatchService) Dispatch(job *model.DownloadJob) {
	// artist 任务只是批次入口，展开产生的 album 任务才会被派发
	if job.Type == model.JobTypeArtist {
		s.logger.Debugf("艺术家任务不直接派发: id=%s", job.ID)
		return
	}

	// 先落 processing，再发起外部调用。派发和对账循环并发运行，
	// 只认领仍活跃的行：对账可能已经抢先把任务推到终态，
	// 这份副本就过期了，终态不允许被拉回在途。
	job.SetProcessing()
	if s.slskd != nil && s.slskd.IsEnabled() {
		job.Channel = model.ChannelSlskd
	} else {
		job.Channel = model.ChannelLidarr
	}
	claim := s.db.Model(&model.DownloadJob{}).
		Where("id = ? AND status IN ?", job.ID, model.ActiveStatuses()).
		Updates(map[string]any{"status": job.Status, "channel": job.Channel})
	if claim.Error != nil {
		s.logger.Errorf("更新任务状态失败: id=%s, err=%v", job.ID, claim.Error)
		return
	}
	if claim.RowsAffected == 0 {
		s.logger.Infof("任务已到达终态，跳过派发: id=%s", job.ID)
		return
	}

	artist, album := s.deriveNames(job)
	if artist == "" || album == "" {
		// 按派发失败处理：任务保持 processing，由超时清扫收尾
		s.logger.Errorf("任务缺少艺术家或专辑信息，无法派发: id=%s, subject=%s", job.ID, job.Subject)
		return
	}

	var providerRef string
	var err error
	switch job.Channel {
	case model.ChannelSlskd:
		providerRef, err = s.slskd.StartDownload(artist, album, job.TargetID, job.UserID)
	case model.ChannelLidarr:
		providerRef, err = s.dispatchLidarr(job)
	}

	if err != nil {
		// 留在 processing，等待超时清扫
		s.logger.Errorf("派发任务失败: id=%s, channel=%s, %s - %s, err=%v",
			job.ID, job.Channel, artist, album, err)
		return
	}

	if providerRef != "" {
		if err := s.db.Model(&model.DownloadJob{}).Where("id = ?", job.ID).
			Update("provider_ref", providerRef).Error; err != nil {
			s.logger.Errorf("记录渠道关联失败: id=%s, err=%v", job.ID, err)
		}
	}

	s.logger.Infof("任务已派发: id=%s, channel=%s, %s - %s, ref=%s",
		job.ID, job.Channel, artist, album, providerRef)
}

// dispatchLidarr 走 Lidarr 渠道：先按发行组ID定位专辑，再触发搜索。
// 渠道关联记 Lidarr 侧的专辑ID，对账时用它匹配队列项。
func (s *DispatchService) dispatchLidarr(job *model.DownloadJob) (string, error) {
	albumRecord, err := s.lidarr.LookupAlbum(job.TargetID)
	if err != nil {
		return "", err
	}

	if _, err := s.lidarr.SearchAlbum(albumRecord.ID); err != nil {
		return "", err
	}

	return fmt.Sprintf("%d", albumRecord.ID), nil
}

// deriveNames 从结构化字段取 (艺术家, 专辑)，缺失时退回拆分任务描述
func (s *DispatchService) deriveNames(job *model.DownloadJob) (string, string) {
	artist, album := job.ArtistName, job.AlbumTitle
	if artist != "" && album != "" {
		return artist, album
	}

	// 任务描述约定格式 "艺术家 - 专辑"
	parts := strings.SplitN(job.Subject, " - ", 2)
	if len(parts) == 2 {
		if artist == "" {
			artist = strings.TrimSpace(parts[0])
		}
		if album == "" {
			album = strings.TrimSpace(parts[1])
		}
	}
	return artist, album
}
