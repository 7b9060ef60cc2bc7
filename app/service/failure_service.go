package service

import (
	"fmt"
	"time"

	"tune-fusion/app/logger"
	"tune-fusion/app/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FailureService 记录重试耗尽后仍无法获取的专辑，供前端展示和发现排序
type FailureService struct {
	db     *gorm.DB
	logger *logger.Logger
	notify *NotifyService
}

// NewFailureService 创建失败记录服务
func NewFailureService(db *gorm.DB, log *logger.Logger, notify *NotifyService) *FailureService {
	return &FailureService{
		db:     db,
		logger: log,
		notify: notify,
	}
}

// UnavailableRecord 一次失败记录的输入
type UnavailableRecord struct {
	UserID     uint
	AlbumMBID  string
	ArtistMBID string
	ArtistName string
	AlbumName  string
	Tier       string
	Similarity float64
}

// RecordUnavailable 按 (用户, 专辑) 维度去重记录失败。
// 重复失败只累加尝试次数，不产生新行。没有用户归属的内部调用是空操作。
func (s *FailureService) RecordUnavailable(rec UnavailableRecord) error {
	if rec.UserID == 0 {
		s.logger.Debugf("失败记录缺少用户归属，跳过: album=%s", rec.AlbumName)
		return nil
	}
	if rec.AlbumMBID == "" {
		return fmt.Errorf("失败记录缺少专辑ID")
	}

	row := model.UnavailableAlbum{
		UserID:     rec.UserID,
		AlbumMBID:  rec.AlbumMBID,
		ArtistMBID: rec.ArtistMBID,
		ArtistName: rec.ArtistName,
		AlbumName:  rec.AlbumName,
		Tier:       rec.Tier,
		Similarity: rec.Similarity,
		Week:       currentWeek(),
		Attempts:   1,
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "album_mbid"}},
		DoUpdates: clause.Assignments(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"week":       row.Week,
			"tier":       row.Tier,
			"similarity": row.Similarity,
			"updated_at": time.Now(),
		}),
	}).Create(&row).Error

	if err != nil {
		s.logger.Errorf("记录不可用专辑失败: album=%s, err=%v", rec.AlbumName, err)
		return err
	}

	// 冲突更新后取回真实的累计次数
	var saved model.UnavailableAlbum
	if err := s.db.Where("user_id = ? AND album_mbid = ?", rec.UserID, rec.AlbumMBID).
		First(&saved).Error; err == nil {
		row = saved
	}

	s.logger.Infof("已记录不可用专辑: %s - %s (用户=%d, 第%d次)", rec.ArtistName, rec.AlbumName, rec.UserID, row.Attempts)
	s.notify.NotifyAlbumUnavailable(rec.ArtistName, rec.AlbumName, rec.AlbumMBID, row.Attempts)
	return nil
}

// ListByUser 查询用户的不可用专辑列表
func (s *FailureService) ListByUser(userID uint) ([]model.UnavailableAlbum, error) {
	var rows []model.UnavailableAlbum
	err := s.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&rows).Error
	return rows, err
}

// currentWeek 当前 ISO 周，格式 2026-34
func currentWeek() string {
	year, week := time.Now().ISOWeek()
	return fmt.Sprintf("%d-%02d", year, week)
}
