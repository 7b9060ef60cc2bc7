package lastfm

import (
	"fmt"
	"strings"

	"tune-fusion/app/config"

	"resty.dev/v3"
)

// Client Last.fm 名称纠正客户端
type Client struct {
	config *config.Config
	client *resty.Client
}

// New 创建新的 Last.fm 客户端
func New(cfg *config.Config) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.LastFM.API, "/"))
	client.SetQueryParam("api_key", cfg.LastFM.APIKey)
	client.SetQueryParam("format", "json")

	return &Client{
		config: cfg,
		client: client,
	}
}

type correctionResponse struct {
	Corrections struct {
		Correction struct {
			Artist struct {
				Name string `json:"name"`
				MBID string `json:"mbid"`
			} `json:"artist"`
		} `json:"correction"`
	} `json:"corrections"`
}

// GetArtistCorrection 查询艺术家名称的规范拼写，无纠正时返回空字符串
func (c *Client) GetArtistCorrection(name string) (string, error) {
	if strings.TrimSpace(c.config.LastFM.APIKey) == "" {
		return "", fmt.Errorf("lastfm 未配置 api_key")
	}

	var result correctionResponse

	resp, err := c.client.R().
		SetQueryParam("method", "artist.getCorrection").
		SetQueryParam("artist", name).
		SetResult(&result).
		Get("/")

	if err != nil {
		return "", fmt.Errorf("请求 Last.fm 纠正失败: %w", err)
	}

	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("查询名称纠正失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	corrected := strings.TrimSpace(result.Corrections.Correction.Artist.Name)
	if corrected == "" || strings.EqualFold(corrected, name) {
		// 没有可用的纠正
		return "", nil
	}

	return corrected, nil
}
