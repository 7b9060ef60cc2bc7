package slskd

import (
	"fmt"
	"strings"
	"time"

	"tune-fusion/app/config"

	"resty.dev/v3"
)

// Client slskd 点对点搜索/传输客户端
type Client struct {
	config *config.Config
	client *resty.Client
}

// New 创建新的 slskd 客户端
func New(cfg *config.Config) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.Slskd.URL, "/") + "/api/v0")
	client.SetHeader("X-API-Key", cfg.Slskd.APIKey)
	client.SetTimeout(60 * time.Second)

	return &Client{
		config: cfg,
		client: client,
	}
}

// IsEnabled slskd 渠道是否启用且可用
func (c *Client) IsEnabled() bool {
	return c.config.Slskd.Enabled &&
		strings.TrimSpace(c.config.Slskd.URL) != "" &&
		strings.TrimSpace(c.config.Slskd.APIKey) != ""
}

// searchFile 搜索结果中的单个文件
type searchFile struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	BitRate  int    `json:"bitRate"`
}

// searchResponse 单个用户的搜索响应
type searchResponse struct {
	Username          string       `json:"username"`
	HasFreeUploadSlot bool         `json:"hasFreeUploadSlot"`
	Files             []searchFile `json:"files"`
}

type searchState struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// StartDownload 搜索并下载指定专辑，返回搜索ID作为渠道关联。
// 搜索、选源和排队都在 slskd 侧完成，本方法只负责发起。
func (c *Client) StartDownload(artist, album, targetID string, userID uint) (string, error) {
	searchText := strings.TrimSpace(artist + " " + album)

	// 发起搜索
	var search searchState
	resp, err := c.client.R().
		SetBody(map[string]any{
			"searchText":             searchText,
			"fileLimit":              500,
			"filterResponses":        true,
			"maximumPeerQueueLength": 50,
		}).
		SetResult(&search).
		Post("/searches")

	if err != nil {
		return "", fmt.Errorf("请求 slskd 搜索失败: %w", err)
	}

	if resp.StatusCode() != 200 && resp.StatusCode() != 201 {
		return "", fmt.Errorf("发起搜索失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	// 等待搜索完成并取回响应
	responses, err := c.waitSearchResponses(search.ID)
	if err != nil {
		return "", err
	}

	best := pickBestResponse(responses)
	if best == nil {
		return "", fmt.Errorf("没有找到可用的下载源: %s", searchText)
	}

	// 将选中用户的全部文件加入传输队列
	files := make([]map[string]any, 0, len(best.Files))
	for _, f := range best.Files {
		files = append(files, map[string]any{
			"filename": f.Filename,
			"size":     f.Size,
		})
	}

	resp, err = c.client.R().
		SetBody(files).
		Post(fmt.Sprintf("/transfers/downloads/%s", best.Username))

	if err != nil {
		return "", fmt.Errorf("请求 slskd 下载失败: %w", err)
	}

	if resp.StatusCode() != 200 && resp.StatusCode() != 201 {
		return "", fmt.Errorf("发起下载失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	return search.ID, nil
}

// waitSearchResponses 轮询搜索状态直到完成，最多等待 30 秒
func (c *Client) waitSearchResponses(searchID string) ([]searchResponse, error) {
	deadline := time.Now().Add(30 * time.Second)

	for time.Now().Before(deadline) {
		var state searchState
		resp, err := c.client.R().
			SetResult(&state).
			Get(fmt.Sprintf("/searches/%s", searchID))

		if err != nil {
			return nil, fmt.Errorf("查询搜索状态失败: %w", err)
		}

		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("查询搜索状态失败，状态码: %d", resp.StatusCode())
		}

		if strings.Contains(state.State, "Completed") {
			break
		}

		time.Sleep(2 * time.Second)
	}

	var responses []searchResponse
	resp, err := c.client.R().
		SetResult(&responses).
		Get(fmt.Sprintf("/searches/%s/responses", searchID))

	if err != nil {
		return nil, fmt.Errorf("获取搜索响应失败: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("获取搜索响应失败，状态码: %d", resp.StatusCode())
	}

	return responses, nil
}

// pickBestResponse 选择文件最多且有空闲上传槽位的源
func pickBestResponse(responses []searchResponse) *searchResponse {
	var best *searchResponse
	for i := range responses {
		r := &responses[i]
		if len(r.Files) == 0 {
			continue
		}
		if best == nil {
			best = r
			continue
		}
		// 有空闲槽位的优先，其次看文件数量
		if r.HasFreeUploadSlot && !best.HasFreeUploadSlot {
			best = r
		} else if r.HasFreeUploadSlot == best.HasFreeUploadSlot && len(r.Files) > len(best.Files) {
			best = r
		}
	}
	return best
}
