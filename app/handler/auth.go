package handler

import (
	"net/http"
	"time"

	"tune-fusion/app/auth"
	"tune-fusion/app/config"
	"tune-fusion/app/database"
	"tune-fusion/app/model"
	"tune-fusion/app/utils"

	"github.com/gin-gonic/gin"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	config     *config.Config
	jwtService *auth.JWTService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		config:     cfg,
		jwtService: auth.NewJWTService(cfg),
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 用户登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ApiResponse{Code: 400, Message: err.Error()})
		return
	}

	var user model.User
	if err := database.DB.Where("username = ? AND is_active = ?", req.Username, true).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, ApiResponse{Code: 401, Message: "用户名或密码错误"})
		return
	}

	if !utils.VerifyPassword(req.Password, user.Password) {
		c.JSON(http.StatusUnauthorized, ApiResponse{Code: 401, Message: "用户名或密码错误"})
		return
	}

	token, err := h.jwtService.GenerateToken(user.ID, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ApiResponse{Code: 500, Message: "生成令牌失败"})
		return
	}

	// 更新最后登录时间
	now := time.Now()
	database.DB.Model(&user).Update("last_login", &now)

	c.JSON(http.StatusOK, ApiResponse{
		Code:    0,
		Message: "登录成功",
		Data: gin.H{
			"token": token,
			"user":  user,
		},
	})
}

// RefreshToken 刷新令牌
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ApiResponse{Code: 400, Message: err.Error()})
		return
	}

	newToken, err := h.jwtService.RefreshToken(req.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ApiResponse{Code: 401, Message: "刷新令牌失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, ApiResponse{
		Code:    0,
		Message: "刷新成功",
		Data:    gin.H{"token": newToken},
	})
}

// Me 获取当前用户信息
func (h *AuthHandler) Me(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ApiResponse{Code: 401, Message: "用户未认证"})
		return
	}

	var user model.User
	if err := database.DB.First(&user, userID.(uint)).Error; err != nil {
		c.JSON(http.StatusNotFound, ApiResponse{Code: 404, Message: "用户不存在"})
		return
	}

	c.JSON(http.StatusOK, ApiResponse{Code: 0, Message: "ok", Data: user})
}
