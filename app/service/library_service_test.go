package service

import (
	"sync/atomic"
	"testing"
	"time"

	"tune-fusion/app/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newLibraryService(t *testing.T, db *gorm.DB) *LibraryService {
	t.Helper()
	return NewLibraryService(db, logger.NewNop(), newTestConfig())
}

func TestHasAlbum(t *testing.T) {
	db := newTestDB(t)
	svc := newLibraryService(t, db)

	seedLibraryAlbum(t, db, "Blink-182", "Dude Ranch", "rg-1", 0)

	owned, err := svc.HasAlbum("rg-1")
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = svc.HasAlbum("rg-missing")
	require.NoError(t, err)
	assert.False(t, owned)

	owned, err = svc.HasAlbum("")
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestFindAlbumMatchBySubstring(t *testing.T) {
	db := newTestDB(t)
	svc := newLibraryService(t, db)

	seedLibraryAlbum(t, db, "Blink-182", "Dude Ranch", "rg-1", 14)

	match, err := svc.FindAlbumMatch("Blink-182", "", "Dude Ranch")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.False(t, match.Fuzzy)
	assert.EqualValues(t, 14, match.TrackCount)
}

func TestFindAlbumMatchUsesOriginalArtist(t *testing.T) {
	db := newTestDB(t)
	svc := newLibraryService(t, db)

	// 库内仍按用户输入的名字建档，解析后的规范名匹配不上
	seedLibraryAlbum(t, db, "blink", "Cheshire Cat", "rg-1", 10)

	match, err := svc.FindAlbumMatch("Blink-182", "blink", "Cheshire Cat")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.False(t, match.Fuzzy)
}

func TestFindAlbumMatchFuzzy(t *testing.T) {
	db := newTestDB(t)
	svc := newLibraryService(t, db)

	seedLibraryAlbum(t, db, "Blink-182", "Enema of the State", "rg-1", 12)

	// 连字符和大小写差异让子串匹配失效，模糊匹配兜底
	match, err := svc.FindAlbumMatch("blink 182", "", "Enema Of The State")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.True(t, match.Fuzzy)
	assert.GreaterOrEqual(t, match.Similarity, 0.75)
}

func TestFindAlbumMatchRejectsBelowThreshold(t *testing.T) {
	db := newTestDB(t)
	svc := newLibraryService(t, db)

	// 前缀相同但专辑完全不相关
	seedLibraryAlbum(t, db, "Blinko", "Completely Different Record", "rg-1", 9)

	match, err := svc.FindAlbumMatch("blink 182", "", "Dude Ranch")
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestFindAlbumMatchRequiresTracks(t *testing.T) {
	db := newTestDB(t)
	svc := newLibraryService(t, db)

	seedLibraryAlbum(t, db, "Blink-182", "Dude Ranch", "rg-1", 0)

	match, err := svc.FindAlbumMatch("Blink-182", "", "Dude Ranch")
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestFindAlbumMatchEmptyTitle(t *testing.T) {
	db := newTestDB(t)
	svc := newLibraryService(t, db)

	match, err := svc.FindAlbumMatch("Blink-182", "", "")
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestEnqueueScan(t *testing.T) {
	db := newTestDB(t)
	svc := newLibraryService(t, db)

	// 未注册触发器时不 panic
	svc.EnqueueScan()

	var scans atomic.Int32
	svc.SetScanRequester(func() error {
		scans.Add(1)
		return nil
	})

	svc.EnqueueScan()
	require.Eventually(t, func() bool {
		return scans.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
