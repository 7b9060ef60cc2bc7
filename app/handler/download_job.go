package handler

import (
	"errors"
	"net/http"
	"strconv"

	"tune-fusion/app/model"
	"tune-fusion/app/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// DownloadJobHandler 下载任务处理器
type DownloadJobHandler struct {
	jobs       *service.DownloadJobService
	reconciler *service.ReconcileService
	failures   *service.FailureService
}

// NewDownloadJobHandler 创建下载任务处理器
func NewDownloadJobHandler(jobs *service.DownloadJobService, reconciler *service.ReconcileService, failures *service.FailureService) *DownloadJobHandler {
	return &DownloadJobHandler{
		jobs:       jobs,
		reconciler: reconciler,
		failures:   failures,
	}
}

// 创建成功响应
func (h *DownloadJobHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, ApiResponse{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// 创建错误响应
func (h *DownloadJobHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, ApiResponse{
		Code:    errorCode,
		Message: message,
		Data:    nil,
	})
}

// currentUserID 从JWT中间件取当前用户ID
func (h *DownloadJobHandler) currentUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		h.error(c, http.StatusUnauthorized, 401, "用户未认证")
		return 0, false
	}
	return userID.(uint), true
}

// CreateJobRequest 创建单个下载任务的请求体
type CreateJobRequest struct {
	TargetID   string `json:"target_id" binding:"required"` // 专辑的 MusicBrainz 发行组ID
	ArtistMBID string `json:"artist_mbid"`
	ArtistName string `json:"artist_name"`
	AlbumTitle string `json:"album_title"`
	Subject    string `json:"subject"`
	PathClass  string `json:"path_class"` // normal 或 discovery
}

// CreateJob 创建单张专辑的下载任务
func (h *DownloadJobHandler) CreateJob(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, err.Error())
		return
	}

	result, err := h.jobs.CreateJob(service.CreateJobRequest{
		UserID:     userID,
		Type:       model.JobTypeAlbum,
		TargetID:   req.TargetID,
		ArtistMBID: req.ArtistMBID,
		ArtistName: req.ArtistName,
		AlbumTitle: req.AlbumTitle,
		Subject:    req.Subject,
		PathClass:  req.PathClass,
	})
	if err != nil {
		if errors.Is(err, service.ErrNoChannel) {
			h.error(c, http.StatusServiceUnavailable, 503, err.Error())
			return
		}
		h.error(c, http.StatusInternalServerError, 500, "创建任务失败: "+err.Error())
		return
	}

	message := "任务已创建"
	if result.Duplicate {
		message = "任务已存在"
	} else if result.Coalesced {
		message = "目标刚失败，请稍后重试"
	}
	h.success(c, result, message)
}

// ExpandArtistRequest 艺术家展开请求体
type ExpandArtistRequest struct {
	ArtistMBID string `json:"artist_mbid" binding:"required"`
	ArtistName string `json:"artist_name" binding:"required"`
	PathClass  string `json:"path_class"`
}

// ExpandArtist 把整个艺术家目录展开成逐专辑的下载批次
func (h *DownloadJobHandler) ExpandArtist(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	var req ExpandArtistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, err.Error())
		return
	}

	jobs, err := h.jobs.ExpandArtist(userID, req.ArtistMBID, req.ArtistName, req.PathClass)
	if err != nil {
		if errors.Is(err, service.ErrNoChannel) {
			h.error(c, http.StatusServiceUnavailable, 503, err.Error())
			return
		}
		h.error(c, http.StatusInternalServerError, 500, "展开艺术家失败: "+err.Error())
		return
	}

	h.success(c, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	}, "已加入下载队列")
}

// ListJobs 分页查询当前用户的任务
func (h *DownloadJobHandler) ListJobs(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	status := c.Query("status")
	includeCleared := c.Query("include_cleared") == "true"

	jobs, total, err := h.jobs.ListJobs(userID, status, includeCleared, page, pageSize)
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询任务失败")
		return
	}

	h.success(c, PagedData{
		Items:    jobs,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, "ok")
}

// GetJob 查询单个任务
func (h *DownloadJobHandler) GetJob(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	job, err := h.jobs.GetJob(userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.error(c, http.StatusNotFound, 404, "任务不存在")
			return
		}
		h.error(c, http.StatusInternalServerError, 500, "查询任务失败")
		return
	}

	h.success(c, job, "ok")
}

// DeleteJob 删除任务记录，幂等
func (h *DownloadJobHandler) DeleteJob(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	if err := h.jobs.DeleteJob(userID, c.Param("id")); err != nil {
		h.error(c, http.StatusInternalServerError, 500, "删除任务失败")
		return
	}

	h.success(c, nil, "任务已删除")
}

// ClearJob 用户从历史记录中清除已结束的任务
func (h *DownloadJobHandler) ClearJob(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	if err := h.jobs.ClearJob(userID, c.Param("id")); err != nil {
		h.error(c, http.StatusBadRequest, 400, err.Error())
		return
	}

	h.success(c, nil, "任务已清除")
}

// ListUnavailable 查询当前用户的不可用专辑
func (h *DownloadJobHandler) ListUnavailable(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	rows, err := h.failures.ListByUser(userID)
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询失败")
		return
	}

	h.success(c, rows, "ok")
}

// ForceCleanup 手动触发一轮对账
func (h *DownloadJobHandler) ForceCleanup(c *gin.Context) {
	h.reconciler.ForceCycle()
	h.success(c, h.reconciler.Status(), "对账已执行")
}

// ManagerStatus 查询对账循环的运行状态
func (h *DownloadJobHandler) ManagerStatus(c *gin.Context) {
	h.success(c, h.reconciler.Status(), "ok")
}
