package service

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"tune-fusion/app/config"
	"tune-fusion/app/database"
	"tune-fusion/app/model"
	"tune-fusion/app/utils/lidarr"
	"tune-fusion/app/utils/musicbrainz"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newTestDB 为单个测试创建独立的内存数据库。
// 连接数限制为 1，避免内存库在连接池下表结构丢失。
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// newTestConfig 测试用默认配置
func newTestConfig() *config.Config {
	return &config.Config{
		Download: config.DownloadConfig{
			ReconcileIntervalSeconds: 30,
			MaxEmptyTicks:            3,
			StaleTimeoutMinutes:      30,
			RecentFailureSeconds:     30,
			BatchTimeoutMinutes:      120,
			CompletedWindowMinutes:   15,
			RetentionDays:            30,
			MaxRetryCount:            3,
			SimilarityThreshold:      0.75,
		},
	}
}

// seedJob 插入一条任务记录，mutate 可覆盖默认字段
func seedJob(t *testing.T, db *gorm.DB, mutate func(*model.DownloadJob)) *model.DownloadJob {
	t.Helper()

	job := &model.DownloadJob{
		ID:            uuid.NewString(),
		UserID:        1,
		Type:          model.JobTypeAlbum,
		TargetID:      uuid.NewString(),
		Subject:       "Blink-182 - Dude Ranch",
		ArtistName:    "Blink-182",
		AlbumTitle:    "Dude Ranch",
		PathClass:     model.PathClassNormal,
		MaxRetryCount: 3,
		Status:        model.JobStatusPending,
	}
	if mutate != nil {
		mutate(job)
	}
	require.NoError(t, db.Create(job).Error)
	return job
}

// reloadJob 从数据库重新读取任务
func reloadJob(t *testing.T, db *gorm.DB, id string) *model.DownloadJob {
	t.Helper()

	var job model.DownloadJob
	require.NoError(t, db.Where("id = ?", id).First(&job).Error)
	return &job
}

// seedLibraryAlbum 插入库内艺术家、专辑和指定数量的曲目
func seedLibraryAlbum(t *testing.T, db *gorm.DB, artistName, albumTitle, foreignID string, tracks int) *model.LibraryAlbum {
	t.Helper()

	artist := &model.LibraryArtist{Name: artistName, ForeignID: uuid.NewString()}
	require.NoError(t, db.Create(artist).Error)

	album := &model.LibraryAlbum{ArtistID: artist.ID, Title: albumTitle, ForeignID: foreignID}
	require.NoError(t, db.Create(album).Error)

	for i := 0; i < tracks; i++ {
		track := &model.LibraryTrack{AlbumID: album.ID, Title: fmt.Sprintf("Track %d", i+1)}
		require.NoError(t, db.Create(track).Error)
	}
	return album
}

// ---- 外部依赖的测试替身 ----

type fakeArtistLookup struct {
	artist *musicbrainz.Artist
	err    error
	calls  int
}

func (f *fakeArtistLookup) GetArtist(mbid string) (*musicbrainz.Artist, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.artist, nil
}

type fakeCorrector struct {
	corrected string
	err       error
	calls     int
}

func (f *fakeCorrector) GetArtistCorrection(name string) (string, error) {
	f.calls++
	return f.corrected, f.err
}

type fakeDispatcher struct {
	hasChannel bool

	mu         sync.Mutex
	dispatched []string
}

func (f *fakeDispatcher) HasChannel() bool { return f.hasChannel }

func (f *fakeDispatcher) Dispatch(job *model.DownloadJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, job.ID)
}

func (f *fakeDispatcher) dispatchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatched)
}

type fakeMetadata struct {
	groups []musicbrainz.ReleaseGroup
	err    error
}

func (f *fakeMetadata) GetReleaseGroups(artistMBID string, types string, limit int) ([]musicbrainz.ReleaseGroup, error) {
	return f.groups, f.err
}

type fakeRegistrar struct {
	configured bool
	err        error
	added      []string
	rootPaths  []string
}

func (f *fakeRegistrar) IsConfigured() bool { return f.configured }

func (f *fakeRegistrar) AddArtist(mbid, name, rootPath string) error {
	f.added = append(f.added, mbid)
	f.rootPaths = append(f.rootPaths, rootPath)
	return f.err
}

type fakeKicker struct {
	mu    sync.Mutex
	kicks int
}

func (f *fakeKicker) Kick() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicks++
}

func (f *fakeKicker) kickCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kicks
}

type fakeProvider struct {
	configured bool
	queue      []lidarr.QueueItem
	queueErr   error
	history    []lidarr.HistoryRecord
	historyErr error
	removeErr  error
	removed    []int64
}

func (f *fakeProvider) IsConfigured() bool { return f.configured }

func (f *fakeProvider) GetQueue() ([]lidarr.QueueItem, error) {
	return f.queue, f.queueErr
}

func (f *fakeProvider) GetRecentCompleted(windowMinutes int) ([]lidarr.HistoryRecord, error) {
	return f.history, f.historyErr
}

func (f *fakeProvider) RemoveQueueItem(id int64) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, id)
	return nil
}
