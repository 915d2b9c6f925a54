package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/samber/do"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/imagegen/config"
	"github.com/BaSui01/imagegen/image"
	"github.com/BaSui01/imagegen/image/modelconfig"
	"github.com/BaSui01/imagegen/image/service"
	"github.com/BaSui01/imagegen/internal/metrics"
	"github.com/BaSui01/imagegen/internal/storage"
	"github.com/BaSui01/imagegen/internal/telemetry"
	"github.com/BaSui01/imagegen/internal/tlsutil"
)

// =============================================================================
// 🧩 应用上下文
// =============================================================================

// app 单次命令执行的依赖集合
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	injector *do.Injector
	stdout   io.Writer
}

// runFunc 子命令主体，args 为 flag 解析后剩余的位置参数
type runFunc func(ctx context.Context, a *app, args []string) error

// withApp 解析 flag、加载配置、组装依赖后执行子命令；结束时按逆序关闭依赖
func withApp(args []string, name string, setup func(fs *flag.FlagSet) runFunc) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	run := setup(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		injector: setupInjector(cfg, logger),
		stdout:   os.Stdout,
	}
	defer a.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, a, fs.Args())
}

func (a *app) shutdown() {
	if err := a.injector.Shutdown(); err != nil {
		a.logger.Warn("shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// =============================================================================
// 💉 依赖注入
// =============================================================================

func setupInjector(cfg *config.Config, logger *zap.Logger) *do.Injector {
	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		},
	})

	do.ProvideValue[*config.Config](injector, cfg)
	do.ProvideValue[*zap.Logger](injector, logger)

	do.Provide[*http.Client](injector, newHTTPClient)
	do.Provide[*image.Registry](injector, newRegistry)
	do.Provide[storage.Store](injector, newStore)
	do.Provide[*metrics.Collector](injector, newCollector)
	do.Provide[*telemetryService](injector, newTelemetry)
	do.Provide[*modelconfig.Manager](injector, newManager)
	do.Provide[*service.Service](injector, newService)

	return injector
}

// newHTTPClient 所有厂商共享的出站客户端，可选代理
func newHTTPClient(i *do.Injector) (*http.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return tlsutil.NewHTTPClient(tlsutil.ClientConfig{
		Timeout:  cfg.HTTP.Timeout,
		ProxyURL: cfg.HTTP.ProxyURL,
	})
}

func newRegistry(i *do.Injector) (*image.Registry, error) {
	return image.NewRegistry(image.Options{
		HTTPClient: do.MustInvoke[*http.Client](i),
		Logger:     do.MustInvoke[*zap.Logger](i),
	}), nil
}

// storeService 让 injector.Shutdown 关闭存储
type storeService struct {
	storage.Store
}

func (s storeService) Shutdown() error { return s.Close() }

func newStore(i *do.Injector) (storage.Store, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*zap.Logger](i)

	switch cfg.Storage.Driver {
	case "memory":
		return storeService{storage.NewMemoryStore()}, nil
	case "redis":
		rc := storage.DefaultRedisConfig()
		rc.Addr = cfg.Redis.Addr
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		rc.KeyPrefix = cfg.Redis.KeyPrefix
		if cfg.Redis.PoolSize > 0 {
			rc.PoolSize = cfg.Redis.PoolSize
		}
		if cfg.Redis.MinIdleConns > 0 {
			rc.MinIdleConns = cfg.Redis.MinIdleConns
		}
		store, err := storage.NewRedisStore(rc, logger)
		if err != nil {
			return nil, err
		}
		return storeService{store}, nil
	case "sql":
		db, err := openDatabase(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		pool := storage.DefaultPoolConfig()
		pool.MaxIdleConns = cfg.Database.MaxIdleConns
		pool.MaxOpenConns = cfg.Database.MaxOpenConns
		pool.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
		store, err := storage.NewSQLStore(db, pool, logger)
		if err != nil {
			return nil, err
		}
		return storeService{store}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}

// newCollector 指标禁用时返回 nil，记录方法对 nil 是空操作
func newCollector(i *do.Injector) (*metrics.Collector, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if !cfg.Metrics.Enabled {
		return nil, nil
	}
	return metrics.NewCollector(cfg.Metrics.Namespace, do.MustInvoke[*zap.Logger](i)), nil
}

// telemetryService 让 injector.Shutdown 刷新 span
type telemetryService struct {
	providers *telemetry.Providers
}

func (t *telemetryService) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.providers.Shutdown(ctx)
}

func newTelemetry(i *do.Injector) (*telemetryService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	providers, err := telemetry.Init(cfg.Telemetry, do.MustInvoke[*zap.Logger](i),
		telemetry.WithDeployment(cfg.Storage.Driver, do.MustInvoke[*image.Registry](i).ProviderIDs()),
	)
	if err != nil {
		return nil, err
	}
	return &telemetryService{providers: providers}, nil
}

func newManager(i *do.Injector) (*modelconfig.Manager, error) {
	cfg := do.MustInvoke[*config.Config](i)
	store, err := do.Invoke[storage.Store](i)
	if err != nil {
		return nil, err
	}
	return modelconfig.NewManager(store, do.MustInvoke[*image.Registry](i), cfg.Providers,
		modelconfig.WithStorageKey(cfg.Storage.Key),
		modelconfig.WithLogger(do.MustInvoke[*zap.Logger](i)),
		modelconfig.WithMetrics(do.MustInvoke[*metrics.Collector](i)),
	), nil
}

func newService(i *do.Injector) (*service.Service, error) {
	logger := do.MustInvoke[*zap.Logger](i)
	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(do.MustInvoke[*metrics.Collector](i)),
	}
	if tel, err := do.Invoke[*telemetryService](i); err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	} else {
		opts = append(opts, service.WithTracer(tel.providers.Tracer()))
	}
	manager, err := do.Invoke[*modelconfig.Manager](i)
	if err != nil {
		return nil, err
	}
	return service.NewService(manager, do.MustInvoke[*image.Registry](i), opts...), nil
}

// =============================================================================
// 🗄️ 数据库
// =============================================================================

// openDatabase 根据配置打开数据库连接
func openDatabase(dbCfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dbCfg.Driver {
	case "postgres":
		dialector = postgres.Open(dbCfg.DSN())
	case "mysql":
		dialector = mysql.Open(dbCfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(dbCfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, mysql, sqlite)", dbCfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	logger.Info("Database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}
