package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"OpenMCP-Forge/internal/anvil"
	"OpenMCP-Forge/internal/api"
	"OpenMCP-Forge/internal/auth"
	"OpenMCP-Forge/internal/chisel"
	"OpenMCP-Forge/internal/config"
	"OpenMCP-Forge/internal/invoke"
	"OpenMCP-Forge/internal/observability/alerting"
	"OpenMCP-Forge/internal/toolchain"
	"OpenMCP-Forge/internal/tools"
	"OpenMCP-Forge/pkg/logger"
)

// main 是 forgemcpd 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("forgemcpd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditPath != "",
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	defs, err := toolchain.LoadDefinitions(cfg.Toolchain.DefinitionsPath)
	if err != nil {
		return err
	}

	// 装配工具链:一次性命令、交互式会话与后台模拟器。
	commandTimeout := time.Duration(cfg.Toolchain.CommandTimeoutSeconds) * time.Second
	sessionTimeout := time.Duration(cfg.Toolchain.SessionTimeoutSeconds) * time.Second

	runner := toolchain.NewRunner(cfg.Project.Root, toolchain.WithTimeout(commandTimeout))

	chiselExe, chiselArgs := defs.Resolve(toolchain.ToolChisel)
	session := chisel.NewDriver(cfg.Project.Root,
		chisel.WithDriverExecutable(chiselExe, chiselArgs),
		chisel.WithSessionTimeout(sessionTimeout),
	)

	anvilExe, anvilArgs := defs.Resolve(toolchain.ToolAnvil)
	processes := anvil.NewRegistry(cfg.Project.Root, anvil.WithExecutable(anvilExe, anvilArgs))
	defer processes.Cleanup()

	toolsetOpts := []tools.ToolsetOption{tools.WithKeyEnv(cfg.Toolchain.PrivateKeyEnv)}
	if advicePath := filepath.Join(cfg.Runtime.DataDir, "advice.json"); fileExists(advicePath) {
		adviser, err := tools.LoadStaticAdviser(advicePath)
		if err != nil {
			return err
		}
		toolsetOpts = append(toolsetOpts, tools.WithAdviser(adviser))
	}
	toolset := tools.NewToolset(runner, session, processes, defs, toolsetOpts...)

	registry := tools.NewRegistry()
	if err := toolset.RegisterAll(registry); err != nil {
		return err
	}

	store, err := createStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	queue, err := createQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.L().Warn("关闭调用队列失败", slog.Any("error", err))
		}
	}()

	service := invoke.NewService(store, queue)
	processor := invoke.NewProcessor(registry, store, queue, queue,
		invoke.WithWorkerCount(cfg.Queue.Worker),
		invoke.WithAlertDispatcher(alerting.NewFanout(alerting.NewLogNotifier(nil))),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("调用处理器异常退出", slog.Any("error", err))
		}
	}()

	server := api.NewServer(cfg.Server.Address, registry, service, auth.NewGuard(cfg.Server.AuthToken))
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	configPath := os.Getenv("FORGEMCP_CONFIG")
	if configPath == "" {
		fallback := filepath.Join("configs", "forgemcp.json")
		if fileExists(fallback) {
			configPath = fallback
		}
	}
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func createStore(cfg *config.Config) (invoke.Store, error) {
	switch cfg.Storage.InvocationStore.Driver {
	case "", "memory":
		return invoke.NewMemoryStore(), nil
	case "mysql":
		return invoke.NewMySQLStore(cfg.Storage.InvocationStore.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.InvocationStore.Driver)
	}
}

func createQueue(cfg *config.Config) (invoke.Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return invoke.NewMemoryQueue(1024), nil
	case "redis":
		return invoke.NewRedisQueue(invoke.RedisQueueConfig{
			Address:   cfg.Queue.Redis.Address,
			Password:  cfg.Queue.Redis.Password,
			DB:        cfg.Queue.Redis.DB,
			Queue:     cfg.Queue.Redis.Queue,
			BlockWait: time.Duration(cfg.Queue.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq":
		return invoke.NewRabbitMQQueue(invoke.RabbitMQConfig{
			URL:        cfg.Queue.RabbitMQ.URL,
			Queue:      cfg.Queue.RabbitMQ.Queue,
			Prefetch:   cfg.Queue.RabbitMQ.Prefetch,
			Durable:    cfg.Queue.RabbitMQ.Durable,
			AutoDelete: cfg.Queue.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
