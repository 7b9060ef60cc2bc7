package musicbrainz

import (
	"fmt"
	"strings"

	"tune-fusion/app/config"

	"resty.dev/v3"
)

// Client MusicBrainz 元数据客户端
type Client struct {
	config *config.Config
	client *resty.Client
}

// New 创建新的 MusicBrainz 客户端
func New(cfg *config.Config) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.MusicBrainz.API, "/"))
	client.SetHeader("User-Agent", cfg.MusicBrainz.UserAgent)
	client.SetQueryParam("fmt", "json")

	return &Client{
		config: cfg,
		client: client,
	}
}

// Artist 艺术家信息
type Artist struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	SortName string `json:"sort-name"`
}

// ReleaseGroup 发行组（专辑/EP）
type ReleaseGroup struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	PrimaryType string `json:"primary-type"`
}

type releaseGroupResponse struct {
	ReleaseGroups []ReleaseGroup `json:"release-groups"`
	Count         int            `json:"release-group-count"`
}

// GetArtist 按 MBID 查询艺术家的规范名称
func (c *Client) GetArtist(mbid string) (*Artist, error) {
	var artist Artist

	resp, err := c.client.R().
		SetResult(&artist).
		Get(fmt.Sprintf("/artist/%s", mbid))

	if err != nil {
		return nil, fmt.Errorf("请求 MusicBrainz 艺术家失败: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("查询艺术家失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	if artist.Name == "" {
		return nil, fmt.Errorf("MusicBrainz 返回的艺术家名称为空: %s", mbid)
	}

	return &artist, nil
}

// GetReleaseGroups 获取艺术家的发行组列表，types 形如 "album|ep"
func (c *Client) GetReleaseGroups(artistMBID string, types string, limit int) ([]ReleaseGroup, error) {
	if limit <= 0 {
		limit = 100
	}

	var result releaseGroupResponse

	resp, err := c.client.R().
		SetQueryParam("artist", artistMBID).
		SetQueryParam("type", types).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetResult(&result).
		Get("/release-group")

	if err != nil {
		return nil, fmt.Errorf("请求 MusicBrainz 发行组失败: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("查询发行组失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	return result.ReleaseGroups, nil
}
