// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"easy-canvas-go/internal/config"
	"easy-canvas-go/internal/handler"
	"easy-canvas-go/internal/middleware"
	"easy-canvas-go/internal/pipeline"
	"easy-canvas-go/internal/repository"
	"easy-canvas-go/internal/service"
	"easy-canvas-go/pkg/canvas"
	"easy-canvas-go/pkg/database"
	"easy-canvas-go/pkg/docstore"
	"easy-canvas-go/pkg/kafka"
	"easy-canvas-go/pkg/llm"
	"easy-canvas-go/pkg/log"
	"easy-canvas-go/pkg/secret"
	"easy-canvas-go/pkg/storage"
	"easy-canvas-go/pkg/tasks"
	"easy-canvas-go/pkg/token"
	"easy-canvas-go/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/semaphore"
)

const (
	refreshTimeout = 5 * time.Minute
	refreshWorkers = 2
)

func main() {
	configPath := pflag.String("config", "./configs/config.yaml", "path to the YAML config file")
	pflag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. 初始化链路追踪
	shutdownTracing, err := tracing.Init(rootCtx, cfg.Tracing)
	if err != nil {
		log.Fatal("链路追踪初始化失败", err)
	}

	// 4. 初始化文档存储
	store, err := openStore(rootCtx, cfg)
	if err != nil {
		log.Fatal("文档存储初始化失败", err)
	}
	defer store.Close()

	// 5. 初始化 Repository
	userRepo := repository.NewUserRepository(store)
	courseRepo := repository.NewCourseRepository(store)
	planRepo := repository.NewPlanRepository(store)
	chatRepo := repository.NewChatRepository(store)

	// 6. 初始化外部客户端
	cipher, err := secret.NewCipher(cfg.Crypto.EncryptionKey)
	if err != nil {
		log.Fatal("凭证加密密钥无效", err)
	}
	verifier := newVerifier(cfg.Auth)
	dialer := canvas.NewDialer(cfg.Canvas.RequestTimeout)
	llmClient := llm.NewClient(cfg.OpenAI)
	modelSem := semaphore.NewWeighted(int64(max(cfg.Chat.MaxConcurrentModelCalls, 1)))

	var summarizer llm.Summarizer
	if cfg.Anthropic.APIKey != "" {
		summarizer = llm.NewAnthropicClient(cfg.Anthropic)
	} else {
		log.Warnf("未配置 anthropic.api_key，摘要接口不可用")
	}

	var transcripts service.TranscriptStore
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinioStore(rootCtx, cfg.MinIO)
		if err != nil {
			log.Fatal("MinIO 初始化失败", err)
		}
		transcripts = minioStore
	} else {
		log.Warnf("未配置 minio.endpoint，对话导出不可用")
	}

	// 7. 初始化 Service (依赖注入)
	courseService := service.NewCourseService(userRepo, courseRepo, dialer, cipher, cfg.Canvas)
	processor := pipeline.NewProcessor(courseService, refreshTimeout)

	// 8. 课程刷新队列：配置了 Kafka 时走 Kafka，否则在进程内执行
	var publisher tasks.Publisher
	if cfg.Kafka.Brokers != "" {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		publisher = producer
		go kafka.NewConsumer(cfg.Kafka, processor).Run(rootCtx)
	} else {
		queue := pipeline.NewLocalQueue(processor, 0)
		queue.Start(rootCtx, refreshWorkers)
		defer queue.Wait()
		publisher = queue
	}

	userService := service.NewUserService(userRepo, courseRepo, planRepo, chatRepo, dialer, cipher, publisher)
	tools := service.NewToolRegistry(courseRepo, userRepo)
	chatLoop := service.NewToolLoop(llmClient, tools, modelSem, cfg.Chat.MaxToolRounds)
	chatService := service.NewChatService(chatRepo, chatLoop, transcripts, cfg.Chat, cfg.OpenAI, cfg.MinIO.URLExpiry)
	plannerLoop := service.NewToolLoop(llmClient, nil, modelSem, 1)
	plannerService := service.NewPlannerService(courseService, service.NewPlanCache(planRepo), plannerLoop, cfg.OpenAI, cfg.Planner)
	summaryService := service.NewSummaryService(summarizer, modelSem)

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(
		middleware.RequestLogger(),
		gin.Recovery(),
		middleware.CORS(cfg.Server.CORSOrigins),
		middleware.SecurityHeaders(),
		middleware.MethodFilter(),
	)

	// 10. 注册路由
	userHandler := handler.NewUserHandler(userService)
	courseHandler := handler.NewCourseHandler(courseService)
	chatHandler := handler.NewChatHandler(chatService, verifier)
	plannerHandler := handler.NewPlannerHandler(plannerService)
	aiHandler := handler.NewAIHandler(summaryService)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Welcome to Easy Canvas API", "data": nil})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": nil})
	})

	api := r.Group("/api")
	// WebSocket 在握手时自行校验查询参数中的 token
	api.GET("/chat/ws", chatHandler.Stream)

	authed := api.Group("/")
	authed.Use(middleware.AuthMiddleware(verifier))
	{
		user := authed.Group("/user")
		{
			user.POST("/settings", userHandler.SaveSettings)
			user.GET("/settings", userHandler.GetSettings)
			user.PATCH("/settings", userHandler.UpdateSettings)
			user.POST("/settings/update", userHandler.UpdateSettings)
			user.DELETE("/settings", userHandler.DeleteSettings)

			user.GET("/courses", courseHandler.GetCourses)
			user.GET("/courses/last-updated", courseHandler.LastUpdated)
			user.GET("/courses/:courseId", courseHandler.GetCourse)
			user.GET("/courses/:courseId/assignments/:assignmentId", courseHandler.GetAssignment)
		}

		authed.POST("/chat", chatHandler.SendMessage)
		chats := authed.Group("/chats")
		{
			chats.GET("", chatHandler.ListChats)
			chats.GET("/:chatId", chatHandler.GetChat)
			chats.PATCH("/:chatId", chatHandler.RenameChat)
			chats.DELETE("/:chatId", chatHandler.DeleteChat)
			chats.GET("/:chatId/export", chatHandler.ExportChat)
		}

		planner := authed.Group("/ai-planner")
		{
			planner.POST("/generate", plannerHandler.Generate)
			planner.GET("/metadata", plannerHandler.Metadata)
			planner.DELETE("/cache", plannerHandler.ClearCache)
		}

		authed.POST("/ai/summarize", aiHandler.Summarize)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	// 停止后台刷新任务
	stop()
	if err := shutdownTracing(ctx); err != nil {
		log.Warnf("关闭链路追踪失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

// openStore 按 storage.driver 创建文档存储。
func openStore(ctx context.Context, cfg config.Config) (docstore.Store, error) {
	switch cfg.Storage.Driver {
	case "firestore", "":
		client, err := database.NewFirestore(ctx, cfg.Database.Firestore)
		if err != nil {
			return nil, err
		}
		return docstore.NewFirestoreStore(client), nil
	case "redis":
		rdb, err := database.NewRedis(ctx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		if err != nil {
			return nil, err
		}
		return docstore.NewRedisStore(rdb), nil
	case "mysql":
		db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
		if err != nil {
			return nil, err
		}
		return docstore.NewGormStore(db)
	case "bolt":
		return docstore.NewBoltStore(cfg.Database.Bolt.Path)
	case "memory":
		log.Warnf("使用内存文档存储，重启后数据会丢失")
		return docstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// newVerifier 配置了 dev_secret 时使用开发模式的 HS256 token，否则校验 Firebase ID token。
func newVerifier(cfg config.AuthConfig) token.Verifier {
	if cfg.DevSecret != "" {
		log.Warnf("使用开发模式 token 校验，请勿在生产环境启用")
		return token.NewDevVerifier(cfg.DevSecret)
	}
	return token.NewFirebaseVerifier(cfg.FirebaseProjectID, cfg.CertsURL, nil)
}
