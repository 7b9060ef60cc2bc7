package server

import (
	"context"
	"net/http"

	"tune-fusion/app/config"
	"tune-fusion/app/database"
	"tune-fusion/app/filewatcher"
	"tune-fusion/app/handler"
	"tune-fusion/app/logger"
	"tune-fusion/app/middleware"
	"tune-fusion/app/service"
	"tune-fusion/app/utils/lastfm"
	"tune-fusion/app/utils/lidarr"
	"tune-fusion/app/utils/musicbrainz"
	"tune-fusion/app/utils/slskd"

	"github.com/gin-gonic/gin"
)

// Server 表示 HTTP 服务器
type Server struct {
	Config *config.Config
	Logger *logger.Logger
	gin    *gin.Engine
	http   *http.Server

	reconciler *service.ReconcileService
	retention  *service.RetentionService
	watcher    *filewatcher.MusicWatcher

	jobHandler  *handler.DownloadJobHandler
	authHandler *handler.AuthHandler
}

// New 创建一个新的 Server 实例并完成服务装配
func New(cfg *config.Config, log *logger.Logger) *Server {
	router := gin.Default()

	db := database.GetDB()

	// 外部客户端
	mbClient := musicbrainz.New(cfg)
	lastfmClient := lastfm.New(cfg)
	lidarrClient := lidarr.New(cfg)
	slskdClient := slskd.New(cfg)

	// 服务装配
	notify := service.NewNotifyService(cfg, log)
	library := service.NewLibraryService(db, log, cfg)
	if lidarrClient.IsConfigured() {
		library.SetScanRequester(lidarrClient.RescanFolders)
	}
	failures := service.NewFailureService(db, log, notify)
	batches := service.NewBatchService(db, log, notify)
	reconciler := service.NewReconcileService(db, log, cfg, lidarrClient, library, batches, failures)
	resolver := service.NewNameResolver(log, mbClient, lastfmClient)
	dispatcher := service.NewDispatchService(db, log, slskdClient, lidarrClient)
	jobs := service.NewDownloadJobService(db, log, cfg, resolver, dispatcher, library, mbClient, lidarrClient, reconciler)
	retention := service.NewRetentionService(db, log, cfg)

	watcher, err := filewatcher.New(&cfg.Watcher, log, reconciler.Kick)
	if err != nil {
		log.Warnf("创建音乐目录监控失败: %v", err)
	}

	s := &Server{
		gin: router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		Config:      cfg,
		Logger:      log,
		reconciler:  reconciler,
		retention:   retention,
		watcher:     watcher,
		jobHandler:  handler.NewDownloadJobHandler(jobs, reconciler, failures),
		authHandler: handler.NewAuthHandler(cfg),
	}

	// 设置路由
	s.setupRoutes()

	return s
}

// Start 启动服务器
func (s *Server) Start() error {
	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)

	// 启动后台服务
	if err := s.retention.Start(); err != nil {
		s.Logger.Errorf("启动保留清理失败: %v", err)
	}
	s.watcher.Start()

	// 进程重启后可能有遗留的在途任务，先唤醒一轮对账
	s.reconciler.Kick()

	return s.http.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	s.reconciler.Stop()
	s.retention.Stop()
	s.watcher.Stop()

	// 关闭数据库连接
	if err := database.Close(); err != nil {
		s.Logger.Errorf("关闭数据库连接失败: %v", err)
	}
	return s.http.Shutdown(ctx)
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes() {
	// API路由组
	api := s.gin.Group("/api")

	// 认证相关路由（不需要JWT验证）
	auth := api.Group("/auth")
	{
		auth.POST("/login", s.authHandler.Login)
		auth.POST("/refresh", s.authHandler.RefreshToken)
	}

	// 需要JWT验证的路由
	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(s.Config))
	{
		// 用户相关
		protected.GET("/me", s.authHandler.Me)

		// 下载任务相关路由
		downloads := protected.Group("/downloads")
		{
			downloads.POST("/", s.jobHandler.CreateJob)
			downloads.POST("/artist", s.jobHandler.ExpandArtist)
			downloads.GET("/", s.jobHandler.ListJobs)
			downloads.GET("/status", s.jobHandler.ManagerStatus)
			downloads.POST("/cleanup", s.jobHandler.ForceCleanup)
			downloads.GET("/unavailable", s.jobHandler.ListUnavailable)
			downloads.GET("/:id", s.jobHandler.GetJob)
			downloads.DELETE("/:id", s.jobHandler.DeleteJob)
			downloads.POST("/:id/clear", s.jobHandler.ClearJob)
		}
	}
}
