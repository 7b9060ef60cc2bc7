package service

import (
	"testing"
	"time"

	"tune-fusion/app/logger"
	"tune-fusion/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetentionSweep(t *testing.T) {
	db := newTestDB(t)
	svc := NewRetentionService(db, logger.NewNop(), newTestConfig())

	old := time.Now().AddDate(0, 0, -40)
	recent := time.Now().AddDate(0, 0, -5)

	expired := seedJob(t, db, func(j *model.DownloadJob) {
		j.Status = model.JobStatusCompleted
		j.CompletedAt = &old
	})
	expiredFailed := seedJob(t, db, func(j *model.DownloadJob) {
		j.Status = model.JobStatusFailed
		j.CompletedAt = &old
	})
	kept := seedJob(t, db, func(j *model.DownloadJob) {
		j.Status = model.JobStatusCompleted
		j.CompletedAt = &recent
	})
	// 活跃任务无论多旧都不清理
	active := seedJob(t, db, func(j *model.DownloadJob) {
		j.Status = model.JobStatusProcessing
		j.CreatedAt = time.Now().AddDate(0, 0, -60)
	})

	svc.Sweep()

	var ids []string
	require.NoError(t, db.Model(&model.DownloadJob{}).Pluck("id", &ids).Error)
	assert.ElementsMatch(t, []string{kept.ID, active.ID}, ids)
	assert.NotContains(t, ids, expired.ID)
	assert.NotContains(t, ids, expiredFailed.ID)
}

func TestRetentionSweepUnavailableAlbums(t *testing.T) {
	db := newTestDB(t)
	svc := NewRetentionService(db, logger.NewNop(), newTestConfig())

	stale := model.UnavailableAlbum{UserID: 1, AlbumMBID: "rg-old", Attempts: 1}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, db.Model(&model.UnavailableAlbum{}).Where("id = ?", stale.ID).
		UpdateColumn("updated_at", time.Now().AddDate(-2, 0, 0)).Error)

	fresh := model.UnavailableAlbum{UserID: 1, AlbumMBID: "rg-new", Attempts: 1}
	require.NoError(t, db.Create(&fresh).Error)

	svc.Sweep()

	var rows []model.UnavailableAlbum
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "rg-new", rows[0].AlbumMBID)
}
