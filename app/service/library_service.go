package service

import (
	"tune-fusion/app/config"
	"tune-fusion/app/logger"
	"tune-fusion/app/model"
	"tune-fusion/app/utils/textmatch"

	"gorm.io/gorm"
)

// ScanRequester 音乐库扫描触发器，由媒体库侧实现
type ScanRequester func() error

// LibraryService 音乐库目录的只读查询。
// 本地库是最终的事实来源：曲目已经在库里，任务就是完成的，
// 不管账本和下载渠道怎么认为。
type LibraryService struct {
	db     *gorm.DB
	logger *logger.Logger
	cfg    *config.Config

	scanRequester ScanRequester
}

// NewLibraryService 创建音乐库查询服务
func NewLibraryService(db *gorm.DB, log *logger.Logger, cfg *config.Config) *LibraryService {
	return &LibraryService{
		db:     db,
		logger: log,
		cfg:    cfg,
	}
}

// SetScanRequester 注册库扫描触发器
func (s *LibraryService) SetScanRequester(fn ScanRequester) {
	s.scanRequester = fn
}

// HasAlbum 按 MusicBrainz 发行组ID判断专辑是否已入库
func (s *LibraryService) HasAlbum(foreignID string) (bool, error) {
	if foreignID == "" {
		return false, nil
	}

	var count int64
	err := s.db.Model(&model.LibraryAlbum{}).
		Where("foreign_id = ?", foreignID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// TrackCount 专辑的曲目数量
func (s *LibraryService) TrackCount(albumID uint) (int64, error) {
	var count int64
	err := s.db.Model(&model.LibraryTrack{}).
		Where("album_id = ?", albumID).
		Count(&count).Error
	return count, err
}

// AlbumMatch 库内匹配结果
type AlbumMatch struct {
	Album      model.LibraryAlbum
	TrackCount int64
	Fuzzy      bool
	Similarity float64
}

// FindAlbumMatch 在库中查找 (艺术家, 专辑)。先做子串匹配；落空或命中的
// 专辑没有任何曲目时，退回模糊匹配。元数据源之间的名称/MBID 差异
// 经常让精确匹配失效，模糊匹配是对账的兜底手段。
// 只有至少包含一条曲目的匹配才会返回。
func (s *LibraryService) FindAlbumMatch(artistName, originalArtist, albumTitle string) (*AlbumMatch, error) {
	if albumTitle == "" {
		return nil, nil
	}

	// 子串匹配
	if match, err := s.findBySubstring(artistName, albumTitle); err != nil {
		return nil, err
	} else if match != nil {
		return match, nil
	}

	// 用原始（未解析）艺术家名再试一次，展开批次用它做对账匹配
	if originalArtist != "" && originalArtist != artistName {
		if match, err := s.findBySubstring(originalArtist, albumTitle); err != nil {
			return nil, err
		} else if match != nil {
			return match, nil
		}
	}

	// 模糊匹配兜底
	return s.findByFuzzy(artistName, originalArtist, albumTitle)
}

// findBySubstring 库内子串匹配，大小写不敏感
func (s *LibraryService) findBySubstring(artistName, albumTitle string) (*AlbumMatch, error) {
	if artistName == "" {
		return nil, nil
	}

	var albums []model.LibraryAlbum
	err := s.db.Joins("Artist").
		Where("library_albums.title LIKE ? AND Artist.name LIKE ?",
			"%"+albumTitle+"%", "%"+artistName+"%").
		Limit(10).
		Find(&albums).Error
	if err != nil {
		return nil, err
	}

	for i := range albums {
		tracks, err := s.TrackCount(albums[i].ID)
		if err != nil {
			return nil, err
		}
		if tracks > 0 {
			return &AlbumMatch{Album: albums[i], TrackCount: tracks}, nil
		}
	}

	// 没命中，或命中的专辑还没有曲目（条目先建、文件未导入）
	return nil, nil
}

// findByFuzzy 模糊匹配：候选是与目标共享短前缀的艺术家，
// 对每个候选专辑计算归一化 (艺术家, 专辑) 相似度
func (s *LibraryService) findByFuzzy(artistName, originalArtist, albumTitle string) (*AlbumMatch, error) {
	var artists []model.LibraryArtist
	if err := s.db.Find(&artists).Error; err != nil {
		return nil, err
	}

	threshold := s.cfg.Download.SimilarityThreshold

	var best *AlbumMatch
	for i := range artists {
		candidate := &artists[i]

		// 前缀筛选，解析后或原始名任一命中即可
		if !textmatch.SharesPrefix(candidate.Name, artistName, textmatch.DefaultPrefixLength) &&
			(originalArtist == "" || !textmatch.SharesPrefix(candidate.Name, originalArtist, textmatch.DefaultPrefixLength)) {
			continue
		}

		var albums []model.LibraryAlbum
		if err := s.db.Where("artist_id = ?", candidate.ID).Find(&albums).Error; err != nil {
			return nil, err
		}

		for j := range albums {
			score := textmatch.PairSimilarity(artistName, albumTitle, candidate.Name, albums[j].Title)
			if originalArtist != "" {
				if alt := textmatch.PairSimilarity(originalArtist, albumTitle, candidate.Name, albums[j].Title); alt > score {
					score = alt
				}
			}

			if score < threshold {
				continue
			}
			if best != nil && score <= best.Similarity {
				continue
			}

			tracks, err := s.TrackCount(albums[j].ID)
			if err != nil {
				return nil, err
			}
			if tracks == 0 {
				continue
			}

			best = &AlbumMatch{
				Album:      albums[j],
				TrackCount: tracks,
				Fuzzy:      true,
				Similarity: score,
			}
		}
	}

	if best != nil {
		s.logger.Infof("模糊匹配命中: %s - %s => %s (相似度=%.2f)",
			artistName, albumTitle, best.Album.Title, best.Similarity)
	}
	return best, nil
}

// EnqueueScan 请求媒体库全量扫描，尽力而为
func (s *LibraryService) EnqueueScan() {
	if s.scanRequester == nil {
		s.logger.Debugf("未注册库扫描触发器，跳过扫描请求")
		return
	}

	go func() {
		if err := s.scanRequester(); err != nil {
			s.logger.Warnf("触发库扫描失败: %v", err)
		}
	}()
}
