package service

import (
	"errors"
	"fmt"
	"time"

	"tune-fusion/app/config"
	"tune-fusion/app/logger"
	"tune-fusion/app/model"
	"tune-fusion/app/utils/musicbrainz"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNoChannel 没有配置任何下载渠道，任务不会被创建
var ErrNoChannel = errors.New("没有配置可用的下载渠道")

// releaseGroupLister MusicBrainz 发行组查询
type releaseGroupLister interface {
	GetReleaseGroups(artistMBID string, types string, limit int) ([]musicbrainz.ReleaseGroup, error)
}

// artistRegistrar Lidarr 艺术家注册
type artistRegistrar interface {
	IsConfigured() bool
	AddArtist(mbid, name, rootPath string) error
}

// jobDispatcher 任务派发
type jobDispatcher interface {
	HasChannel() bool
	Dispatch(job *model.DownloadJob)
}

// reconcileKicker 唤醒对账循环
type reconcileKicker interface {
	Kick()
}

// CreateJobRequest 创建任务的输入
type CreateJobRequest struct {
	UserID         uint
	Type           model.JobType
	TargetID       string // MusicBrainz 目标ID
	Subject        string
	ArtistMBID     string // 名称解析用的权威艺术家ID，可为空
	ArtistName     string
	OriginalArtist string // 展开批次携带的原始输入名
	AlbumTitle     string
	PathClass      string
	BatchID        string
}

// CreateJobResult 创建结果。Duplicate/Coalesced 不是错误，
// 而是并发或重复请求被合并到已有记录的标记。
type CreateJobResult struct {
	Job       *model.DownloadJob `json:"job"`
	Duplicate bool               `json:"duplicate"`
	Coalesced bool               `json:"coalesced"`
}

// DownloadJobService 下载任务的创建与管理，账本的唯一写入口之一
type DownloadJobService struct {
	db         *gorm.DB
	logger     *logger.Logger
	cfg        *config.Config
	resolver   *NameResolver
	dispatcher jobDispatcher
	library    *LibraryService
	metadata   releaseGroupLister
	registrar  artistRegistrar
	reconciler reconcileKicker
}

// NewDownloadJobService 创建下载任务服务
func NewDownloadJobService(
	db *gorm.DB,
	log *logger.Logger,
	cfg *config.Config,
	resolver *NameResolver,
	dispatcher jobDispatcher,
	library *LibraryService,
	metadata releaseGroupLister,
	registrar artistRegistrar,
	reconciler reconcileKicker,
) *DownloadJobService {
	return &DownloadJobService{
		db:         db,
		logger:     log,
		cfg:        cfg,
		resolver:   resolver,
		dispatcher: dispatcher,
		library:    library,
		metadata:   metadata,
		registrar:  registrar,
		reconciler: reconciler,
	}
}

// CreateJob 创建单个下载任务。重复检查、近期失败合并和插入在同一个
// 事务里执行——多个 HTTP 请求可能同时到达，事务边界是防止重复任务的
// 唯一保证。
func (s *DownloadJobService) CreateJob(req CreateJobRequest) (*CreateJobResult, error) {
	if req.TargetID == "" {
		return nil, fmt.Errorf("缺少下载目标ID")
	}
	if req.Type == "" {
		req.Type = model.JobTypeAlbum
	}
	if !s.dispatcher.HasChannel() {
		return nil, ErrNoChannel
	}

	// album 任务入库前解析规范艺术家名，下游渠道按名称搜索
	artistName := req.ArtistName
	if req.Type == model.JobTypeAlbum && s.resolver != nil && (req.ArtistName != "" || req.ArtistMBID != "") {
		resolved := s.resolver.Resolve(req.ArtistName, req.ArtistMBID)
		if resolved.Name != "" {
			artistName = resolved.Name
		}
	}

	originalArtist := req.OriginalArtist
	if originalArtist == "" {
		originalArtist = req.ArtistName
	}

	subject := req.Subject
	if subject == "" && artistName != "" && req.AlbumTitle != "" {
		subject = artistName + " - " + req.AlbumTitle
	}

	result := &CreateJobResult{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// 同一目标最多允许一个活跃任务
		var existing model.DownloadJob
		err := tx.Where("target_id = ? AND status IN ?", req.TargetID, model.ActiveStatuses()).
			First(&existing).Error
		if err == nil {
			result.Job = &existing
			result.Duplicate = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// 刚失败的目标在合并窗口内不立即重试
		cutoff := time.Now().Add(-s.cfg.Download.RecentFailureWindow())
		err = tx.Where("target_id = ? AND status = ? AND completed_at > ?",
			req.TargetID, model.JobStatusFailed, cutoff).
			First(&existing).Error
		if err == nil {
			result.Job = &existing
			result.Coalesced = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		job := &model.DownloadJob{
			ID:             uuid.NewString(),
			UserID:         req.UserID,
			Type:           req.Type,
			TargetID:       req.TargetID,
			Subject:        subject,
			PathClass:      req.PathClass,
			ArtistName:     artistName,
			OriginalArtist: originalArtist,
			AlbumTitle:     req.AlbumTitle,
			BatchID:        req.BatchID,
			MaxRetryCount:  s.cfg.Download.MaxRetryCount,
			Status:         model.JobStatusPending,
		}
		if job.PathClass == "" {
			job.PathClass = model.PathClassNormal
		}

		if err := tx.Create(job).Error; err != nil {
			return err
		}
		result.Job = job
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Duplicate {
		s.logger.Infof("任务已存在，合并请求: target=%s, job=%s", req.TargetID, result.Job.ID)
		return result, nil
	}
	if result.Coalesced {
		s.logger.Infof("目标刚失败，合并到已有记录: target=%s, job=%s", req.TargetID, result.Job.ID)
		return result, nil
	}

	s.logger.Infof("任务已创建: id=%s, type=%s, subject=%s", result.Job.ID, result.Job.Type, result.Job.Subject)

	// 派发不阻塞创建路径，完成与否交给对账循环观察
	jobCopy := *result.Job
	go s.dispatcher.Dispatch(&jobCopy)
	s.kick()

	return result, nil
}

// ExpandArtist 把"下载整个艺术家"展开成逐专辑的任务批次。
// 批次内每张专辑独立创建、独立派发，单张失败不影响其余。
func (s *DownloadJobService) ExpandArtist(userID uint, artistMBID, artistName, pathClass string) ([]model.DownloadJob, error) {
	if artistMBID == "" {
		return nil, fmt.Errorf("缺少艺术家ID")
	}
	if !s.dispatcher.HasChannel() {
		return nil, ErrNoChannel
	}

	batchID := uuid.NewString()

	// 规范名只解析一次，批次内共享
	canonical := artistName
	if s.resolver != nil {
		resolved := s.resolver.Resolve(artistName, artistMBID)
		if resolved.Name != "" {
			canonical = resolved.Name
		}
	}

	// 注册到 Lidarr 监控，失败不阻塞展开
	if s.registrar != nil && s.registrar.IsConfigured() {
		rootPath := s.cfg.Lidarr.RootPath
		if pathClass == model.PathClassDiscovery && s.cfg.Lidarr.DiscoveryPath != "" {
			rootPath = s.cfg.Lidarr.DiscoveryPath
		}
		if err := s.registrar.AddArtist(artistMBID, canonical, rootPath); err != nil {
			s.logger.Warnf("注册艺术家到 Lidarr 失败: %s, err=%v", canonical, err)
		}
	}

	groups, err := s.metadata.GetReleaseGroups(artistMBID, "album|ep", 100)
	if err != nil {
		return nil, fmt.Errorf("获取艺术家发行组失败: %w", err)
	}

	created := make([]model.DownloadJob, 0, len(groups))
	for _, rg := range groups {
		// 已入库的直接跳过
		owned, err := s.library.HasAlbum(rg.ID)
		if err != nil {
			s.logger.Errorf("检查专辑是否入库失败: %s, err=%v", rg.Title, err)
		} else if owned {
			s.logger.Debugf("专辑已入库，跳过: %s - %s", canonical, rg.Title)
			continue
		}

		res, err := s.CreateJob(CreateJobRequest{
			UserID:         userID,
			Type:           model.JobTypeAlbum,
			TargetID:       rg.ID,
			ArtistMBID:     artistMBID,
			ArtistName:     canonical,
			OriginalArtist: artistName,
			AlbumTitle:     rg.Title,
			PathClass:      pathClass,
			BatchID:        batchID,
		})
		if err != nil {
			// 单张专辑创建失败不阻塞同批其余专辑
			s.logger.Errorf("创建批次任务失败: %s - %s, err=%v", canonical, rg.Title, err)
			continue
		}
		if res.Duplicate || res.Coalesced {
			continue
		}
		created = append(created, *res.Job)
	}

	s.logger.Infof("艺术家展开完成: %s, batch=%s, 发行组=%d, 新建任务=%d",
		canonical, batchID, len(groups), len(created))
	return created, nil
}

// ListJobs 按用户分页查询任务
func (s *DownloadJobService) ListJobs(userID uint, status string, includeCleared bool, page, pageSize int) ([]model.DownloadJob, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := s.db.Model(&model.DownloadJob{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if !includeCleared {
		query = query.Where("cleared_by_user = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []model.DownloadJob
	err := query.Order("created_at DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&jobs).Error
	return jobs, total, err
}

// GetJob 查询单个任务
func (s *DownloadJobService) GetJob(userID uint, id string) (*model.DownloadJob, error) {
	var job model.DownloadJob
	err := s.db.Where("id = ? AND user_id = ?", id, userID).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// DeleteJob 删除任务记录，幂等——删除不存在的任务不是错误
func (s *DownloadJobService) DeleteJob(userID uint, id string) error {
	return s.db.Where("id = ? AND user_id = ?", id, userID).
		Delete(&model.DownloadJob{}).Error
}

// ClearJob 用户从历史记录中清除已结束的任务，记录保留
func (s *DownloadJobService) ClearJob(userID uint, id string) error {
	result := s.db.Model(&model.DownloadJob{}).
		Where("id = ? AND user_id = ? AND status IN ?", id, userID,
			[]model.JobStatus{model.JobStatusCompleted, model.JobStatusFailed}).
		Update("cleared_by_user", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("任务不存在或尚未结束")
	}
	return nil
}

// kick 唤醒对账循环
func (s *DownloadJobService) kick() {
	if s.reconciler != nil {
		s.reconciler.Kick()
	}
}
