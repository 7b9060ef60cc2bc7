package model

import (
	"time"
)

// UnavailableAlbum 无法获取的专辑记录，重试耗尽后写入，供前端展示
type UnavailableAlbum struct {
	ID         uint    `json:"id" gorm:"primarykey"`
	UserID     uint    `json:"user_id" gorm:"not null;uniqueIndex:idx_user_album;comment:所属用户"`
	AlbumMBID  string  `json:"album_mbid" gorm:"column:album_mbid;size:64;not null;uniqueIndex:idx_user_album;comment:专辑的MusicBrainz ID"`
	ArtistMBID string  `json:"artist_mbid" gorm:"column:artist_mbid;size:64;index"`
	ArtistName string  `json:"artist_name" gorm:"size:255"`
	AlbumName  string  `json:"album_name" gorm:"size:255"`
	Tier       string  `json:"tier" gorm:"size:32;comment:发现推荐层级"`
	Similarity float64 `json:"similarity" gorm:"comment:推荐相似度，用于发现排序"`
	Week       string  `json:"week" gorm:"size:16;comment:尝试下载发生的ISO周，格式 2026-34"`
	Attempts   int     `json:"attempts" gorm:"default:1;comment:累计尝试次数"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (UnavailableAlbum) TableName() string {
	return "unavailable_albums"
}
