// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ask-pdf-go/internal/chunker"
	"ask-pdf-go/internal/config"
	"ask-pdf-go/internal/handler"
	"ask-pdf-go/internal/middleware"
	"ask-pdf-go/internal/pipeline"
	"ask-pdf-go/internal/repository"
	"ask-pdf-go/internal/service"
	"ask-pdf-go/pkg/database"
	"ask-pdf-go/pkg/embedding"
	"ask-pdf-go/pkg/extractor"
	"ask-pdf-go/pkg/kafka"
	"ask-pdf-go/pkg/log"
	"ask-pdf-go/pkg/storage"
	"ask-pdf-go/pkg/vectorstore"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 初始化数据库和 Redis，未配置时使用进程内存储
	docRepo := repository.NewMemoryDocumentRepository()
	if cfg.Database.MySQL.DSN != "" {
		db, err := database.InitMySQL(cfg.Database.MySQL.DSN)
		if err != nil {
			log.Fatal("failed to connect database", err)
		}
		docRepo = repository.NewDocumentRepository(db)
	} else {
		log.Warnf("未配置 MySQL, 文档登记表只保存在内存中")
	}
	statusRepo := repository.NewMemoryStatusRepository()
	if cfg.Database.Redis.Addr != "" {
		rdb, err := database.InitRedis(ctx, cfg.Database.Redis)
		if err != nil {
			log.Fatal("failed to connect to redis", err)
		}
		defer rdb.Close()
		statusRepo = repository.NewStatusRepository(rdb)
	}

	// 4. 初始化向量模型和向量库
	provider, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		log.Fatal("初始化向量模型失败", err)
	}
	embedder := embedding.NewClient(cfg.Embedding, provider)
	dims := cfg.Embedding.Dimensions
	if dims == 0 {
		// 未配置维度时需要加载一次模型来确定索引维度
		if dims, err = embedder.Dimension(ctx); err != nil {
			log.Fatal("加载向量模型失败", err)
		}
	}
	backend, err := vectorstore.Open(ctx, cfg.VectorStore, cfg.Elasticsearch, dims)
	if err != nil {
		log.Fatal("初始化向量库失败", err)
	}
	store := vectorstore.NewClient(backend, cfg.VectorStore.BatchSize, dims)
	defer store.Close()
	log.Infof("向量库 %s 初始化成功, 维度: %d, 批大小: %d", backend.Name(), dims, cfg.VectorStore.BatchSize)

	// 5. 初始化文件处理管道 (Processor)
	splitter, err := chunker.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		log.Fatal("切块参数非法", err)
	}
	registry := extractor.NewRegistry(cfg.Tika)
	log.Infof("支持的文件类型: %v", registry.SupportedExtensions())
	reporter := service.NewStatusReporter(statusRepo, docRepo)
	processor := pipeline.NewProcessor(registry, splitter, embedder, store, reporter)

	// 6. 异步模式下初始化 MinIO 和 Kafka
	var (
		objects service.ObjectStore
		queue   service.TaskQueue
	)
	if cfg.Upload.Async {
		minioStorage, err := storage.InitMinIO(ctx, cfg.MinIO)
		if err != nil {
			log.Fatal("初始化 MinIO 失败", err)
		}
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		objects, queue = minioStorage, producer
	}

	// 7. 初始化 Service (依赖注入)
	documentService := service.NewDocumentService(cfg.Upload, processor, docRepo, statusRepo, reporter, objects, queue, embedder.Model())
	searchService := service.NewSearchService(processor, cfg.Search)

	// 8. 启动后台 Kafka 消费者
	consumerDone := make(chan struct{})
	if cfg.Upload.Async {
		go func() {
			defer close(consumerDone)
			kafka.StartConsumer(ctx, cfg.Kafka, documentService)
		}()
	} else {
		close(consumerDone)
	}

	// 8.1 导入 initfile 目录中的文件，已入库的跳过
	go initSeedFiles(ctx, "initfile", documentService, docRepo)

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())
	r.MaxMultipartMemory = cfg.Upload.MaxUploadBytes() + 1<<20
	handler.RegisterRoutes(r, handler.NewDocumentHandler(documentService), handler.NewSearchHandler(searchService))

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

	<-ctx.Done()
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	<-consumerDone
	log.Info("服务已优雅关闭")
}
