package lidarr

import (
	"fmt"
	"strings"
	"time"

	"tune-fusion/app/config"

	"resty.dev/v3"
)

// Client Lidarr API 客户端，对应集中式下载管理渠道
type Client struct {
	config *config.Config
	client *resty.Client
}

// New 创建新的 Lidarr 客户端
func New(cfg *config.Config) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.Lidarr.URL, "/") + "/api/v1")
	client.SetHeader("X-Api-Key", cfg.Lidarr.APIKey)
	client.SetTimeout(30 * time.Second)

	return &Client{
		config: cfg,
		client: client,
	}
}

// IsConfigured Lidarr 渠道是否可用
func (c *Client) IsConfigured() bool {
	return strings.TrimSpace(c.config.Lidarr.URL) != "" && strings.TrimSpace(c.config.Lidarr.APIKey) != ""
}

// QueueItem Lidarr 队列中的一条传输记录（只读视图）
type QueueItem struct {
	ID                   int64  `json:"id"`
	AlbumID              int64  `json:"albumId"`
	Title                string `json:"title"`
	Status               string `json:"status"`
	TrackedDownloadState string `json:"trackedDownloadState"`
	DownloadID           string `json:"downloadId"`
	ErrorMessage         string `json:"errorMessage"`
}

// IsImportBlocked 传输是否卡在导入阶段
func (q *QueueItem) IsImportBlocked() bool {
	switch q.TrackedDownloadState {
	case "importBlocked", "importFailed":
		return true
	}
	return q.Status == "warning"
}

type queueResponse struct {
	Records []QueueItem `json:"records"`
}

// HistoryAlbum 历史记录关联的专辑信息
type HistoryAlbum struct {
	ForeignAlbumID string `json:"foreignAlbumId"`
	Title          string `json:"title"`
}

// HistoryRecord Lidarr 导入完成的历史记录
type HistoryRecord struct {
	ID          int64         `json:"id"`
	DownloadID  string        `json:"downloadId"`
	SourceTitle string        `json:"sourceTitle"`
	EventType   string        `json:"eventType"`
	Date        time.Time     `json:"date"`
	Album       *HistoryAlbum `json:"album"`
}

// Artist Lidarr 侧的艺术家记录
type Artist struct {
	ID              int64  `json:"id"`
	ArtistName      string `json:"artistName"`
	ForeignArtistID string `json:"foreignArtistId"`
}

// Album Lidarr 侧的专辑记录
type Album struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	ForeignAlbumID string `json:"foreignAlbumId"`
}

// AddArtist 注册并监控艺术家，已存在时 Lidarr 返回 400，调用方按非致命处理
func (c *Client) AddArtist(mbid, name, rootPath string) error {
	body := map[string]any{
		"foreignArtistId":  mbid,
		"artistName":       name,
		"rootFolderPath":   rootPath,
		"qualityProfileId": c.config.Lidarr.QualityProfileID,
		"monitored":        true,
		"addOptions": map[string]any{
			"monitor":                "all",
			"searchForMissingAlbums": false,
		},
	}

	resp, err := c.client.R().
		SetBody(body).
		Post("/artist")

	if err != nil {
		return fmt.Errorf("请求 Lidarr 添加艺术家失败: %w", err)
	}

	// 400 表示艺术家已存在，视为成功
	if resp.StatusCode() != 201 && resp.StatusCode() != 400 {
		return fmt.Errorf("添加艺术家失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

// GetQueue 获取当前活跃的传输队列
func (c *Client) GetQueue() ([]QueueItem, error) {
	var result queueResponse

	resp, err := c.client.R().
		SetQueryParam("pageSize", "200").
		SetResult(&result).
		Get("/queue")

	if err != nil {
		return nil, fmt.Errorf("请求 Lidarr 队列失败: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("查询队列失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	return result.Records, nil
}

// GetRecentCompleted 获取最近导入完成的历史记录，windowMinutes 为回看窗口
func (c *Client) GetRecentCompleted(windowMinutes int) ([]HistoryRecord, error) {
	since := time.Now().Add(-time.Duration(windowMinutes) * time.Minute)

	var records []HistoryRecord

	resp, err := c.client.R().
		SetQueryParam("date", since.UTC().Format(time.RFC3339)).
		SetQueryParam("eventType", "downloadFolderImported").
		SetResult(&records).
		Get("/history/since")

	if err != nil {
		return nil, fmt.Errorf("请求 Lidarr 历史记录失败: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("查询历史记录失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	return records, nil
}

// RemoveQueueItem 从队列移除卡住的传输，不拉黑该发行版本，允许 Lidarr 换源重试
func (c *Client) RemoveQueueItem(id int64) error {
	resp, err := c.client.R().
		SetQueryParam("removeFromClient", "true").
		SetQueryParam("blocklist", "false").
		Delete(fmt.Sprintf("/queue/%d", id))

	if err != nil {
		return fmt.Errorf("请求 Lidarr 移除队列项失败: %w", err)
	}

	if resp.StatusCode() != 200 && resp.StatusCode() != 204 {
		return fmt.Errorf("移除队列项失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

// LookupAlbum 按 MusicBrainz 发行组ID查找 Lidarr 侧的专辑记录
func (c *Client) LookupAlbum(foreignAlbumID string) (*Album, error) {
	var albums []Album

	resp, err := c.client.R().
		SetQueryParam("foreignAlbumId", foreignAlbumID).
		SetResult(&albums).
		Get("/album")

	if err != nil {
		return nil, fmt.Errorf("请求 Lidarr 专辑失败: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("查询专辑失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	if len(albums) == 0 {
		return nil, fmt.Errorf("Lidarr 中未找到专辑: %s", foreignAlbumID)
	}

	return &albums[0], nil
}

// SearchAlbum 触发专辑搜索命令，返回命令ID作为任务的渠道关联
func (c *Client) SearchAlbum(albumID int64) (string, error) {
	var result struct {
		ID int64 `json:"id"`
	}

	resp, err := c.client.R().
		SetBody(map[string]any{
			"name":     "AlbumSearch",
			"albumIds": []int64{albumID},
		}).
		SetResult(&result).
		Post("/command")

	if err != nil {
		return "", fmt.Errorf("请求 Lidarr 搜索命令失败: %w", err)
	}

	if resp.StatusCode() != 201 {
		return "", fmt.Errorf("触发专辑搜索失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	return fmt.Sprintf("%d", result.ID), nil
}

// RescanFolders 触发音乐库全量扫描，让媒体库追上已经落盘的下载
func (c *Client) RescanFolders() error {
	resp, err := c.client.R().
		SetBody(map[string]any{"name": "RescanFolders"}).
		Post("/command")

	if err != nil {
		return fmt.Errorf("请求 Lidarr 扫描命令失败: %w", err)
	}

	if resp.StatusCode() != 201 {
		return fmt.Errorf("触发库扫描失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	return nil
}
