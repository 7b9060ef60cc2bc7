package service

import (
	"errors"
	"fmt"
	"testing"

	"tune-fusion/app/logger"
	"tune-fusion/app/model"
	"tune-fusion/app/utils/lidarr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeSlskd struct {
	enabled bool
	ref     string
	err     error
	calls   []string
}

func (f *fakeSlskd) IsEnabled() bool { return f.enabled }

func (f *fakeSlskd) StartDownload(artist, album, targetID string, userID uint) (string, error) {
	f.calls = append(f.calls, fmt.Sprintf("%s|%s", artist, album))
	return f.ref, f.err
}

type fakeLidarrChannel struct {
	configured bool
	album      *lidarr.Album
	lookupErr  error
	searchErr  error
	searched   []int64
}

func (f *fakeLidarrChannel) IsConfigured() bool { return f.configured }

func (f *fakeLidarrChannel) LookupAlbum(foreignAlbumID string) (*lidarr.Album, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.album, nil
}

func (f *fakeLidarrChannel) SearchAlbum(albumID int64) (string, error) {
	if f.searchErr != nil {
		return "", f.searchErr
	}
	f.searched = append(f.searched, albumID)
	return "101", nil
}

func newDispatcher(t *testing.T, db *gorm.DB, slskd *fakeSlskd, lc *fakeLidarrChannel) *DispatchService {
	t.Helper()
	return NewDispatchService(db, logger.NewNop(), slskd, lc)
}

func TestHasChannel(t *testing.T) {
	db := newTestDB(t)

	assert.False(t, newDispatcher(t, db, &fakeSlskd{}, &fakeLidarrChannel{}).HasChannel())
	assert.True(t, newDispatcher(t, db, &fakeSlskd{enabled: true}, &fakeLidarrChannel{}).HasChannel())
	assert.True(t, newDispatcher(t, db, &fakeSlskd{}, &fakeLidarrChannel{configured: true}).HasChannel())
}

func TestDispatchSkipsArtistJobs(t *testing.T) {
	db := newTestDB(t)
	slskd := &fakeSlskd{enabled: true}
	svc := newDispatcher(t, db, slskd, &fakeLidarrChannel{})

	job := seedJob(t, db, func(j *model.DownloadJob) {
		j.Type = model.JobTypeArtist
	})
	svc.Dispatch(job)

	assert.Empty(t, slskd.calls)
	assert.Equal(t, model.JobStatusPending, reloadJob(t, db, job.ID).Status)
}

func TestDispatchPrefersSlskd(t *testing.T) {
	db := newTestDB(t)
	slskd := &fakeSlskd{enabled: true, ref: "search-7"}
	lc := &fakeLidarrChannel{configured: true, album: &lidarr.Album{ID: 77}}
	svc := newDispatcher(t, db, slskd, lc)

	job := seedJob(t, db, nil)
	svc.Dispatch(job)

	require.Len(t, slskd.calls, 1)
	assert.Equal(t, "Blink-182|Dude Ranch", slskd.calls[0])
	assert.Empty(t, lc.searched)

	got := reloadJob(t, db, job.ID)
	assert.Equal(t, model.JobStatusProcessing, got.Status)
	assert.Equal(t, model.ChannelSlskd, got.Channel)
	assert.Equal(t, "search-7", got.ProviderRef)
}

func TestDispatchLidarrStoresAlbumRef(t *testing.T) {
	db := newTestDB(t)
	lc := &fakeLidarrChannel{configured: true, album: &lidarr.Album{ID: 77, Title: "Dude Ranch"}}
	svc := newDispatcher(t, db, &fakeSlskd{}, lc)

	job := seedJob(t, db, nil)
	svc.Dispatch(job)

	assert.Equal(t, []int64{77}, lc.searched)

	got := reloadJob(t, db, job.ID)
	assert.Equal(t, model.JobStatusProcessing, got.Status)
	assert.Equal(t, model.ChannelLidarr, got.Channel)
	// 渠道关联记 Lidarr 侧的专辑ID，对账时匹配队列项
	assert.Equal(t, "77", got.ProviderRef)
}

func TestDispatchFailureStaysProcessing(t *testing.T) {
	db := newTestDB(t)
	slskd := &fakeSlskd{enabled: true, err: errors.New("no peers")}
	svc := newDispatcher(t, db, slskd, &fakeLidarrChannel{})

	job := seedJob(t, db, nil)
	svc.Dispatch(job)

	// 派发失败的任务留给超时清扫收尾
	got := reloadJob(t, db, job.ID)
	assert.Equal(t, model.JobStatusProcessing, got.Status)
	assert.Empty(t, got.ProviderRef)
}

func TestDispatchDerivesNamesFromSubject(t *testing.T) {
	db := newTestDB(t)
	slskd := &fakeSlskd{enabled: true}
	svc := newDispatcher(t, db, slskd, &fakeLidarrChannel{})

	job := seedJob(t, db, func(j *model.DownloadJob) {
		j.ArtistName = ""
		j.AlbumTitle = ""
		j.Subject = "ABBA - Arrival"
	})
	svc.Dispatch(job)

	require.Len(t, slskd.calls, 1)
	assert.Equal(t, "ABBA|Arrival", slskd.calls[0])
}

func TestDispatchWithoutNamesLeftForSweep(t *testing.T) {
	db := newTestDB(t)
	slskd := &fakeSlskd{enabled: true}
	svc := newDispatcher(t, db, slskd, &fakeLidarrChannel{})

	job := seedJob(t, db, func(j *model.DownloadJob) {
		j.ArtistName = ""
		j.AlbumTitle = ""
		j.Subject = "no separator here"
	})
	svc.Dispatch(job)

	// 派发不出去也要落 processing，否则超时清扫永远不会碰它，
	// 任务会无限期占住目标
	assert.Empty(t, slskd.calls)
	got := reloadJob(t, db, job.ID)
	assert.Equal(t, model.JobStatusProcessing, got.Status)
	assert.Empty(t, got.ProviderRef)
}

func TestDispatchSkipsTerminalJobs(t *testing.T) {
	db := newTestDB(t)
	slskd := &fakeSlskd{enabled: true, ref: "search-1"}
	svc := newDispatcher(t, db, slskd, &fakeLidarrChannel{})

	// 对账循环赶在派发协程之前完成了任务，协程手里还是过期的副本
	job := seedJob(t, db, nil)
	staleCopy := *job
	job.SetCompleted()
	require.NoError(t, db.Save(job).Error)

	svc.Dispatch(&staleCopy)

	got := reloadJob(t, db, job.ID)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Empty(t, got.Channel)
	assert.Empty(t, got.ProviderRef)
	assert.Empty(t, slskd.calls)

	failed := seedJob(t, db, func(j *model.DownloadJob) {
		j.Status = model.JobStatusFailed
	})
	svc.Dispatch(&model.DownloadJob{ID: failed.ID, Type: model.JobTypeAlbum,
		ArtistName: failed.ArtistName, AlbumTitle: failed.AlbumTitle})

	assert.Equal(t, model.JobStatusFailed, reloadJob(t, db, failed.ID).Status)
	assert.Empty(t, slskd.calls)
}
