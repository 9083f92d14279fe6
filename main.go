package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"storyboard/internal/config"
	"storyboard/internal/service"
	"storyboard/internal/tools"
)

func main() {
	// 初始化日志
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.InfoLevel)
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(lvl)
	}

	// 加载本地环境变量（不存在时忽略）
	_ = godotenv.Load()

	// 加载配置
	cfgPath := os.Getenv("STORYBOARD_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg := config.Load(cfgPath)

	// 初始化服务和工具
	svc := service.New(cfg)
	storyboardTool := tools.NewStoryboardTool(svc)

	// 初始化Gin路由
	router := gin.Default()

	router.POST("/api/storyboard/generate", handleGenerate(svc))
	router.GET("/api/storyboard/info", handleInfo(svc))
	router.GET("/api/storyboard/result/:job_id", handleResult(svc))
	router.POST("/tools/storyboard-generate", handleToolInvoke(storyboardTool))

	// 启动服务器
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		log.Printf("服务器启动在 %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("启动服务器失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("关闭服务器...")

	if err := srv.Close(); err != nil {
		log.Fatalf("服务器关闭失败: %v", err)
	}

	log.Println("服务器已关闭")
}

// handleGenerate 处理分镜生成请求
func handleGenerate(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.GenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
			return
		}

		resp, err := svc.GenerateWire(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("分镜生成失败: %v", err)})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// handleInfo 处理服务信息请求
func handleInfo(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Info())
	}
}

// handleResult 查询已落盘的生成结果
func handleResult(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := svc.LoadResult(c.Param("job_id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("未找到结果: %v", err)})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleToolInvoke 以eino工具协议调用分镜生成
func handleToolInvoke(tool *tools.StoryboardTool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var args tools.StoryboardToolArgs
		if err := c.ShouldBindJSON(&args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
			return
		}

		argsJSON, err := json.Marshal(args)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		out, err := tool.InvokableRun(c.Request.Context(), string(argsJSON))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("工具调用失败: %v", err)})
			return
		}

		c.Data(http.StatusOK, "application/json", []byte(out))
	}
}
