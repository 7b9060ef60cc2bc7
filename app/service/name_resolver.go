package service

import (
	"strings"
	"time"

	"tune-fusion/app/logger"
	"tune-fusion/app/utils/musicbrainz"

	gocache "github.com/patrickmn/go-cache"
)

// 名称来源
const (
	NameSourceMusicBrainz = "musicbrainz" // 权威元数据，直接采信
	NameSourceLastFM      = "lastfm"      // 二级纠正服务
	NameSourceOriginal    = "original"    // 未能纠正，保留原始输入
)

// artistLookup MusicBrainz 艺术家查询
type artistLookup interface {
	GetArtist(mbid string) (*musicbrainz.Artist, error)
}

// nameCorrector Last.fm 名称纠正
type nameCorrector interface {
	GetArtistCorrection(name string) (string, error)
}

// ResolvedName 名称解析结果
type ResolvedName struct {
	Name      string `json:"name"`
	Corrected bool   `json:"corrected"`
	Source    string `json:"source"`
}

// NameResolver 艺术家名称解析器。
// 下游渠道按名称搜索，别名和错拼会让搜索落空，所以入库前统一成规范拼写。
type NameResolver struct {
	logger *logger.Logger
	mb     artistLookup
	lastfm nameCorrector
	cache  *gocache.Cache
}

// NewNameResolver 创建名称解析器
func NewNameResolver(log *logger.Logger, mb artistLookup, lastfm nameCorrector) *NameResolver {
	return &NameResolver{
		logger: log,
		mb:     mb,
		lastfm: lastfm,
		cache:  gocache.New(1*time.Hour, 10*time.Minute),
	}
}

// Resolve 解析艺术家名称。优先级：MusicBrainz MBID 查询 > Last.fm 纠正 > 原始输入。
// 外部服务失败只记日志，永远返回可用的名称。
func (r *NameResolver) Resolve(rawName, mbid string) ResolvedName {
	rawName = strings.TrimSpace(rawName)

	cacheKey := "name:" + strings.ToLower(rawName)
	if mbid != "" {
		cacheKey = "mbid:" + mbid
	}
	if cached, ok := r.cache.Get(cacheKey); ok {
		return cached.(ResolvedName)
	}

	result := r.resolve(rawName, mbid)
	r.cache.Set(cacheKey, result, gocache.DefaultExpiration)
	return result
}

func (r *NameResolver) resolve(rawName, mbid string) ResolvedName {
	// 有权威ID时以 MusicBrainz 为准，无论和输入差多远
	if mbid != "" && r.mb != nil {
		artist, err := r.mb.GetArtist(mbid)
		if err != nil {
			r.logger.Warnf("MusicBrainz 查询艺术家失败，回退到名称纠正: mbid=%s, err=%v", mbid, err)
		} else {
			return ResolvedName{
				Name:      artist.Name,
				Corrected: !strings.EqualFold(artist.Name, rawName),
				Source:    NameSourceMusicBrainz,
			}
		}
	}

	// 二级纠正服务
	if r.lastfm != nil && rawName != "" {
		corrected, err := r.lastfm.GetArtistCorrection(rawName)
		if err != nil {
			r.logger.Warnf("Last.fm 名称纠正失败: name=%s, err=%v", rawName, err)
		} else if corrected != "" {
			r.logger.Infof("艺术家名称已纠正: %s -> %s", rawName, corrected)
			return ResolvedName{
				Name:      corrected,
				Corrected: true,
				Source:    NameSourceLastFM,
			}
		}
	}

	// 保留原始输入
	return ResolvedName{
		Name:      rawName,
		Corrected: false,
		Source:    NameSourceOriginal,
	}
}
