package service

import (
	"strings"
	"time"

	"tune-fusion/app/config"
	"tune-fusion/app/logger"

	"resty.dev/v3"
)

// 通知事件类型
const (
	NotifyEventAlbumUnavailable = "album_unavailable"
	NotifyEventBatchComplete    = "batch_complete"
)

// NotifyService 向外部 webhook 推送事件，尽力而为，失败不影响主流程
type NotifyService struct {
	logger *logger.Logger
	cfg    *config.Config
	client *resty.Client
}

// NewNotifyService 创建通知服务
func NewNotifyService(cfg *config.Config, log *logger.Logger) *NotifyService {
	client := resty.New()
	client.SetTimeout(10 * time.Second)

	return &NotifyService{
		logger: log,
		cfg:    cfg,
		client: client,
	}
}

// isConfigured 是否配置了 webhook 地址
func (s *NotifyService) isConfigured() bool {
	return s != nil && strings.TrimSpace(s.cfg.Notify.WebhookURL) != ""
}

// Send 异步推送事件
func (s *NotifyService) Send(event string, payload map[string]any) {
	if !s.isConfigured() {
		return
	}

	go func() {
		body := map[string]any{
			"event":     event,
			"timestamp": time.Now().Format(time.RFC3339),
			"data":      payload,
		}

		resp, err := s.client.R().
			SetBody(body).
			Post(s.cfg.Notify.WebhookURL)

		if err != nil {
			s.logger.Warnf("推送通知失败: event=%s, err=%v", event, err)
			return
		}

		if resp.StatusCode() >= 300 {
			s.logger.Warnf("推送通知被拒绝: event=%s, 状态码=%d", event, resp.StatusCode())
		}
	}()
}

// NotifyAlbumUnavailable 推送专辑不可用事件
func (s *NotifyService) NotifyAlbumUnavailable(artistName, albumName, albumMBID string, attempts int) {
	s.Send(NotifyEventAlbumUnavailable, map[string]any{
		"artist":     artistName,
		"album":      albumName,
		"album_mbid": albumMBID,
		"attempts":   attempts,
	})
}

// NotifyBatchComplete 推送批次完成事件
func (s *NotifyService) NotifyBatchComplete(batchID, artistName string, total, completed, failed int64) {
	s.Send(NotifyEventBatchComplete, map[string]any{
		"batch_id":  batchID,
		"artist":    artistName,
		"total":     total,
		"completed": completed,
		"failed":    failed,
	})
}
