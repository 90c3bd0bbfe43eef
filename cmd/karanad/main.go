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

	"Karana-Planner/internal/api"
	"Karana-Planner/internal/catalog"
	"Karana-Planner/internal/config"
	"Karana-Planner/internal/device"
	"Karana-Planner/internal/device/chain"
	"Karana-Planner/internal/device/static"
	"Karana-Planner/internal/engine"
	"Karana-Planner/internal/nlu"
	"Karana-Planner/internal/nlu/bridge"
	nluopenai "Karana-Planner/internal/nlu/openai"
	"Karana-Planner/internal/observability/alerting"
	"Karana-Planner/internal/observability/metrics"
	"Karana-Planner/internal/planjob"
	"Karana-Planner/internal/planner"
	"Karana-Planner/internal/policy"
	"Karana-Planner/internal/storage/mysql"
	"Karana-Planner/internal/storage/sqlite"
	"Karana-Planner/pkg/extension"
	"Karana-Planner/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("karanad 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("KARANA_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "karana.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	appLog := logger.Named("karanad")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return fmt.Errorf("创建数据目录失败: %w", err)
	}

	// 指标服务独立监听，随主上下文退出。
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("指标服务退出", slog.Any("error", err))
			}
		}()
	}

	// SQLite 单文件可同时承载目录与策略两张表，按路径复用连接。
	sqliteStores := map[string]*sqlite.Store{}
	openSQLite := func(path string) (*sqlite.Store, error) {
		if path == "" {
			path = filepath.Join(cfg.Runtime.DataDir, "karana.db")
		}
		if store, ok := sqliteStores[path]; ok {
			return store, nil
		}
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		sqliteStores[path] = store
		return store, nil
	}
	defer func() {
		for _, store := range sqliteStores {
			if err := store.Close(); err != nil {
				appLog.Warn("关闭 SQLite 存储失败", slog.Any("error", err))
			}
		}
	}()

	appCatalog, err := buildCatalogProvider(ctx, cfg, openSQLite)
	if err != nil {
		return err
	}
	if closer, ok := appCatalog.(interface{ Close() error }); ok {
		defer func() { _ = closer.Close() }()
	}

	profiles, err := buildPolicyStore(ctx, cfg, openSQLite)
	if err != nil {
		return err
	}
	if closer, ok := profiles.(interface{ Close() error }); ok {
		if _, shared := profiles.(*sqlite.Store); !shared {
			defer func() { _ = closer.Close() }()
		}
	}

	// 设备侧：静态快照打底，链上刷新器按需叠加。
	var base device.Provider
	if cfg.Device.SnapshotPath != "" {
		loaded, err := static.Load(cfg.Device.SnapshotPath)
		if err != nil {
			return fmt.Errorf("加载设备快照失败: %w", err)
		}
		base = loaded
	} else {
		base = static.NewProvider(defaultSnapshot())
		appLog.Warn("未配置设备快照，使用内置开发快照")
	}

	var refreshers []device.Refresher
	if cfg.Chain.Enabled {
		registry, err := chain.NewRegistry(ctx, cfg.Chain)
		if err != nil {
			return fmt.Errorf("初始化链注册表失败: %w", err)
		}
		defer registry.Close()
		client, err := registry.DefaultClient()
		if err != nil {
			return err
		}
		refreshers = append(refreshers, client)
		appLog.Info("链上刷新器已启用", slog.Any("chains", registry.Chains()))
	}
	snapshots := device.NewComposite(base, refreshers,
		device.WithRefreshTimeout(time.Duration(cfg.Device.RefreshTimeoutSeconds)*time.Second),
		device.WithCompositeLogger(logger.Named("device")),
	)

	recognizer, err := createRecognizer(cfg)
	if err != nil {
		return err
	}

	extManager, err := startExtensions(ctx, cfg, appLog)
	if err != nil {
		return err
	}
	if extManager != nil {
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := extManager.StopAll(stopCtx); err != nil {
				appLog.Warn("停止扩展失败", slog.Any("error", err))
			}
		}()
	}

	engineOpts := []engine.Option{
		engine.WithCatalogProvider(appCatalog),
		engine.WithPlannerOptions(
			planner.WithAssumedStorageBudget(float64(cfg.Planner.AssumedStorageBudgetMB)),
			planner.WithNominalBatteryCapacity(cfg.Planner.NominalBatteryCapacityMAh),
		),
		engine.WithNLUTimeout(cfg.NLU.Timeout()),
	}
	if recognizer != nil {
		engineOpts = append(engineOpts, engine.WithRecognizer(recognizer))
	}
	if extManager != nil {
		engineOpts = append(engineOpts, engine.WithExtensions(extManager))
	}
	eng := engine.New(snapshots, profiles, engineOpts...)

	store := planjob.NewMemoryStore()
	queue, err := createQueue(cfg.Jobs.Queue)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			appLog.Warn("关闭任务队列失败", slog.Any("error", err))
		}
	}()

	service := planjob.NewService(store, queue, cfg.Jobs.MaxRetries)

	processorOpts := []planjob.ProcessorOption{
		planjob.WithWorkerCount(cfg.Jobs.Workers),
		planjob.WithProcessorLogger(logger.Named("planjob")),
	}
	if dispatcher := buildAlertDispatcher(cfg.Alerts, appLog); dispatcher != nil {
		processorOpts = append(processorOpts, planjob.WithAlertDispatcher(dispatcher))
	}
	processor := planjob.NewProcessor(eng, store, queue, queue, processorOpts...)

	processorCtx, cancelProcessor := context.WithCancel(ctx)
	defer cancelProcessor()
	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			appLog.Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()

	server := api.NewServer(cfg.Server.Address, service, eng)
	appLog.Info("karanad 启动",
		slog.String("address", cfg.Server.Address),
		slog.String("catalog_driver", cfg.Catalog.Driver),
		slog.String("policy_driver", cfg.Policy.Driver),
		slog.String("queue_driver", cfg.Jobs.Queue.Driver),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildCatalogProvider 根据配置选择应用目录的存储实现。
func buildCatalogProvider(ctx context.Context, cfg *config.Config, openSQLite func(string) (*sqlite.Store, error)) (catalog.Provider, error) {
	switch cfg.Catalog.Driver {
	case "", "static":
		if cfg.Catalog.Path != "" {
			provider, err := catalog.LoadStaticProvider(cfg.Catalog.Path)
			if err != nil {
				return nil, fmt.Errorf("加载应用目录失败: %w", err)
			}
			return provider, nil
		}
		return catalog.NewStaticProvider(catalog.Default()), nil
	case "mysql":
		store, err := mysql.NewSQLCatalogStore(ctx, mysql.Config{
			DSN:             cfg.Catalog.DSN,
			MaxOpenConns:    cfg.Catalog.MaxOpenConns,
			MaxIdleConns:    cfg.Catalog.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Catalog.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Catalog.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化 MySQL 应用目录失败: %w", err)
		}
		if err := store.EnsureSeeded(ctx, catalog.Default().Apps()); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("初始化应用目录种子失败: %w", err)
		}
		return store, nil
	case "sqlite":
		store, err := openSQLite(cfg.Catalog.Path)
		if err != nil {
			return nil, fmt.Errorf("初始化 SQLite 应用目录失败: %w", err)
		}
		if err := store.EnsureSeeded(ctx, catalog.Default().Apps()); err != nil {
			return nil, fmt.Errorf("初始化应用目录种子失败: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("未知的应用目录驱动: %s", cfg.Catalog.Driver)
	}
}

// buildPolicyStore 根据配置选择用户策略存储，并应用种子数据。
func buildPolicyStore(ctx context.Context, cfg *config.Config, openSQLite func(string) (*sqlite.Store, error)) (policy.Store, error) {
	seeds, err := policy.LoadSeeds(cfg.Policy.SeedPath)
	if err != nil {
		return nil, err
	}

	switch cfg.Policy.Driver {
	case "", "memory":
		return policy.NewMemoryStore(seeds), nil
	case "mysql":
		store, err := mysql.NewSQLPolicyStore(ctx, mysql.Config{DSN: cfg.Policy.DSN})
		if err != nil {
			return nil, fmt.Errorf("初始化 MySQL 策略存储失败: %w", err)
		}
		if err := store.ApplySeed(ctx, seeds); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("写入策略种子失败: %w", err)
		}
		return store, nil
	case "sqlite":
		store, err := openSQLite(cfg.Policy.Path)
		if err != nil {
			return nil, fmt.Errorf("初始化 SQLite 策略存储失败: %w", err)
		}
		if err := store.ApplySeed(ctx, seeds); err != nil {
			return nil, fmt.Errorf("写入策略种子失败: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("未知的策略存储驱动: %s", cfg.Policy.Driver)
	}
}

// createRecognizer 根据配置创建意图识别客户端，provider 为 none 时返回 nil。
func createRecognizer(cfg *config.Config) (nlu.Client, error) {
	switch cfg.NLU.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		apiKey := cfg.NLU.OpenAI.APIKey
		if apiKey == "" && cfg.NLU.OpenAI.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.NLU.OpenAI.APIKeyEnv)
		}
		client, err := nluopenai.NewClient(nluopenai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.NLU.OpenAI.BaseURL,
			Model:   cfg.NLU.OpenAI.Model,
			Timeout: cfg.NLU.OpenAI.Timeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("初始化 OpenAI 识别器失败: %w", err)
		}
		return client, nil
	case "python_bridge":
		scriptPath := bridge.ResolveScriptPath(cfg.NLU.Python.WorkingDir, cfg.NLU.Python.ScriptPath)
		client, err := bridge.NewClient(cfg.NLU.Python.PythonExecutable, scriptPath, cfg.NLU.Python.WorkingDir)
		if err != nil {
			return nil, fmt.Errorf("初始化 Python 识别器失败: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("未知的 NLU 提供方: %s", cfg.NLU.Provider)
	}
}

// startExtensions 加载并启动上下文扩展，未启用时返回 nil。
func startExtensions(ctx context.Context, cfg *config.Config, appLog *slog.Logger) (*extension.Manager, error) {
	if !cfg.Extensions.Enabled {
		return nil, nil
	}
	mcfg, err := extension.LoadManagerConfig(filepath.Join(cfg.Extensions.Dir, "extensions.yaml"))
	if err != nil {
		return nil, fmt.Errorf("加载扩展配置失败: %w", err)
	}
	if mcfg.ExtensionDir == "" {
		mcfg.ExtensionDir = cfg.Extensions.Dir
	}
	if len(mcfg.Defaults.AllowedCapabilities) == 0 && len(cfg.Extensions.Allowed) > 0 {
		for _, name := range cfg.Extensions.Allowed {
			mcfg.Defaults.AllowedCapabilities = append(mcfg.Defaults.AllowedCapabilities, extension.Capability(name))
		}
	}
	manager, err := extension.NewManager(mcfg)
	if err != nil {
		return nil, fmt.Errorf("初始化扩展管理器失败: %w", err)
	}
	if err := manager.StartAll(ctx); err != nil {
		return nil, fmt.Errorf("启动扩展失败: %w", err)
	}
	appLog.Info("上下文扩展已启动", slog.String("dir", mcfg.ExtensionDir))
	return manager, nil
}

// createQueue 根据配置创建任务队列。
func createQueue(cfg config.QueueConfig) (planjob.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return planjob.NewMemoryQueue(cfg.Capacity), nil
	case "redis":
		queue, err := planjob.NewRedisQueue(planjob.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.BlockWaitSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化 Redis 队列失败: %w", err)
		}
		return queue, nil
	case "rabbitmq":
		queue, err := planjob.NewRabbitMQQueue(planjob.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化 RabbitMQ 队列失败: %w", err)
		}
		return queue, nil
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}

// buildAlertDispatcher 根据配置组装告警通道，未启用或无有效通道时返回 nil。
func buildAlertDispatcher(cfg config.AlertsConfig, appLog *slog.Logger) alerting.Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	var notifiers []alerting.Notifier
	for _, channel := range cfg.Channels {
		switch channel {
		case "email":
			if cfg.Email.Host == "" || len(cfg.Email.To) == 0 {
				appLog.Warn("邮件告警缺少 host 或收件人，已跳过")
				continue
			}
			notifiers = append(notifiers, &alerting.EmailNotifier{
				Sender: &alerting.SMTPEmailSender{
					Host:     cfg.Email.Host,
					Port:     cfg.Email.Port,
					Username: cfg.Email.Username,
					Password: cfg.Email.Password,
					From:     cfg.Email.From,
				},
				To:            cfg.Email.To,
				SubjectPrefix: "[Karana]",
			})
		case "dingtalk":
			if cfg.DingTalk.WebhookURL == "" {
				appLog.Warn("钉钉告警缺少 webhook 地址，已跳过")
				continue
			}
			notifiers = append(notifiers, &alerting.DingTalkNotifier{
				Sender: &alerting.DingTalkWebhookSender{
					WebhookURL: cfg.DingTalk.WebhookURL,
					Secret:     cfg.DingTalk.Secret,
				},
			})
		case "slack":
			if cfg.Slack.WebhookURL == "" {
				appLog.Warn("Slack 告警缺少 webhook 地址，已跳过")
				continue
			}
			notifiers = append(notifiers, &alerting.SlackNotifier{
				Sender:    &alerting.SlackWebhookSender{WebhookURL: cfg.Slack.WebhookURL},
				ChannelID: cfg.Slack.Channel,
			})
		default:
			appLog.Warn("未知的告警通道", slog.String("channel", channel))
		}
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}

// defaultSnapshot 返回开发环境使用的内置设备快照。
func defaultSnapshot() *device.Snapshot {
	return &device.Snapshot{
		Wallet: device.WalletState{
			Exists:      true,
			Address:     "0x0000000000000000000000000000000000000000",
			BalanceKara: 10,
		},
		Power: device.PowerState{
			Fraction:    0.9,
			CapacityMAh: 4000,
		},
		Storage: device.StorageState{
			AvailableMB: 4096,
			Reported:    true,
		},
		Network: device.NetworkState{
			PeerCount: 8,
		},
		InstalledApps: []string{"Maps", "WhatsApp"},
		CapturedAt:    time.Now().Unix(),
	}
}
