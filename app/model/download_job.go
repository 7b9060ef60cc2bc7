package model

import (
	"time"
)

// JobType 下载任务类型
type JobType string

const (
	JobTypeArtist JobType = "artist" // 整个艺术家目录（仅作为批次入口，不直接派发）
	JobTypeAlbum  JobType = "album"  // 单张专辑
)

// JobStatus 下载任务状态
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// 下载渠道
const (
	ChannelLidarr = "lidarr"
	ChannelSlskd  = "slskd"
)

// 目标目录类别
const (
	PathClassNormal    = "normal"    // 正常音乐库
	PathClassDiscovery = "discovery" // 每周发现目录
)

// DownloadJob 下载任务账本记录，本子系统唯一的意图来源
type DownloadJob struct {
	ID     string  `json:"id" gorm:"primarykey;size:64"`
	UserID uint    `json:"user_id" gorm:"index;comment:发起任务的用户"`
	Type   JobType `json:"type" gorm:"size:16;not null;comment:artist 或 album"`

	// 下载目标
	TargetID string `json:"target_id" gorm:"size:64;not null;index;comment:MusicBrainz 目标ID"`
	Subject  string `json:"subject" gorm:"size:512;comment:人类可读的任务描述"`

	// 路由与对账元数据
	Channel        string `json:"channel" gorm:"size:16;comment:下载渠道 lidarr/slskd"`
	PathClass      string `json:"path_class" gorm:"size:16;default:normal;comment:normal 或 discovery"`
	ArtistName     string `json:"artist_name" gorm:"size:255;comment:解析后的规范艺术家名"`
	OriginalArtist string `json:"original_artist" gorm:"size:255;comment:请求时的原始艺术家名，用于对账匹配"`
	AlbumTitle     string `json:"album_title" gorm:"size:255"`
	BatchID        string `json:"batch_id" gorm:"size:64;index;comment:艺术家展开批次ID"`
	ProviderRef    string `json:"provider_ref" gorm:"size:64;index;comment:Lidarr 侧的下载ID"`

	// 重试与错误信息
	RetryCount    int    `json:"retry_count" gorm:"default:0"`
	MaxRetryCount int    `json:"max_retry_count" gorm:"default:3"`
	LastError     string `json:"last_error" gorm:"type:text"`

	Status        JobStatus `json:"status" gorm:"size:20;default:pending;index"`
	ClearedByUser bool      `json:"cleared_by_user" gorm:"default:false;comment:用户从历史记录中清除"`

	CreatedAt   time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// TableName 指定表名
func (DownloadJob) TableName() string {
	return "download_jobs"
}

// IsActive 任务是否仍在进行中
func (j *DownloadJob) IsActive() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusProcessing
}

// IsTerminal 任务是否已到达终态
func (j *DownloadJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// SetProcessing 标记为派发中
func (j *DownloadJob) SetProcessing() {
	j.Status = JobStatusProcessing
}

// SetCompleted 标记为完成并记录完成时间
func (j *DownloadJob) SetCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.LastError = ""
}

// SetFailed 标记为失败并记录错误信息
func (j *DownloadJob) SetFailed(reason string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.LastError = reason
}

// IncrementRetry 增加重试次数，任务仍保持在途状态
func (j *DownloadJob) IncrementRetry(reason string) {
	j.RetryCount++
	j.LastError = reason
}

// ActiveStatuses 活跃状态集合，查询用
func ActiveStatuses() []JobStatus {
	return []JobStatus{JobStatusPending, JobStatusProcessing}
}
