package model

import (
	"time"
)

// LibraryArtist 音乐库中的艺术家，下载子系统只读
type LibraryArtist struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	Name      string    `json:"name" gorm:"size:255;not null;index"`
	ForeignID string    `json:"foreign_id" gorm:"size:64;uniqueIndex;comment:MusicBrainz 艺术家ID"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (LibraryArtist) TableName() string {
	return "library_artists"
}

// LibraryAlbum 音乐库中的专辑，曲目已入库才算真正拥有
type LibraryAlbum struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	ArtistID  uint      `json:"artist_id" gorm:"not null;index"`
	Title     string    `json:"title" gorm:"size:255;not null;index"`
	ForeignID string    `json:"foreign_id" gorm:"size:64;index;comment:MusicBrainz 发行组ID"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Artist *LibraryArtist `json:"artist,omitempty" gorm:"foreignKey:ArtistID"`
}

// TableName 指定表名
func (LibraryAlbum) TableName() string {
	return "library_albums"
}

// LibraryTrack 音乐库中的曲目
type LibraryTrack struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	AlbumID   uint      `json:"album_id" gorm:"not null;index"`
	Title     string    `json:"title" gorm:"size:255"`
	Path      string    `json:"path" gorm:"size:1024"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (LibraryTrack) TableName() string {
	return "library_tracks"
}
