// Package di wires the application together. Construction is explicit:
// each dependency is built once, in order, and handed to whatever needs
// it.
package di

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"flopods-backend/application/locking"
	"flopods-backend/application/ports"
	"flopods-backend/application/services"
	"flopods-backend/infrastructure/config"
	"flopods-backend/infrastructure/persistence/dynamodb"
	"flopods-backend/infrastructure/persistence/memory"
	"flopods-backend/infrastructure/persistence/resilience"
	"flopods-backend/interfaces/websocket"
	"flopods-backend/pkg/auth"
	"flopods-backend/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config   *config.Config
	Watcher  *config.Watcher
	Logger   *zap.Logger
	logLevel zap.AtomicLevel
	Metrics  *observability.Collector

	Pods          ports.PodRepository
	Edges         ports.EdgeRepository
	Flows         ports.FlowRepository
	Notifications ports.NotificationRepository
	LockStore     ports.PodLockStore

	Coordinator *locking.Coordinator
	Hub         *websocket.Hub
	Broadcaster *websocket.Broadcaster
	JWTService  *auth.JWTService
	WSServer    *websocket.Server

	CanvasService       *services.CanvasService
	MoveService         *services.MoveService
	FlowService         *services.FlowService
	NotificationService *services.NotificationService
}

// NewContainer builds the full dependency graph from cfg
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	if err := c.buildLogger(); err != nil {
		return nil, err
	}
	if err := c.buildPersistence(ctx); err != nil {
		return nil, err
	}
	c.buildRealtime()
	c.buildServices()

	if err := c.buildWatcher(); err != nil {
		return nil, err
	}

	c.Logger.Info("container initialized",
		zap.String("environment", cfg.Environment),
		zap.Bool("in_memory_store", cfg.Database.InMemory))
	return c, nil
}

func (c *Container) buildLogger() error {
	level, err := zap.ParseAtomicLevel(c.Config.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Config.LogLevel, err)
	}

	var zapCfg zap.Config
	if c.Config.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = level

	logger, err := zapCfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	c.Logger = logger
	c.logLevel = level
	c.Metrics = observability.NewCollector("flopods")
	return nil
}

func (c *Container) buildPersistence(ctx context.Context) error {
	if c.Config.Database.InMemory {
		store := memory.NewStore()
		c.Pods = store.Pods()
		c.Edges = store.Edges()
		c.Flows = store.Flows()
		c.Notifications = store.Notifications()
		c.LockStore = store.Locks()
		return nil
	}

	client, err := dynamodb.NewClient(ctx, c.Config.Database.Region, c.Config.Database.Endpoint)
	if err != nil {
		return fmt.Errorf("create dynamodb client: %w", err)
	}

	table := c.Config.Database.TableName
	if c.Config.Database.Endpoint != "" {
		// Local DynamoDB starts empty, so the process provisions its own table.
		if err := dynamodb.EnsureTable(ctx, client, table, c.Logger); err != nil {
			return fmt.Errorf("ensure table: %w", err)
		}
	}
	pods := dynamodb.NewPodRepository(client, table, c.Logger)
	edges := dynamodb.NewEdgeRepository(client, table, c.Logger)

	c.Pods = resilience.NewPodRepository(pods, resilience.DefaultBreakerConfig("pods"), c.Logger)
	c.Edges = resilience.NewEdgeRepository(edges, resilience.DefaultBreakerConfig("edges"), c.Logger)
	c.Flows = dynamodb.NewFlowRepository(client, table, c.Logger)
	c.Notifications = dynamodb.NewNotificationRepository(client, table, c.Logger)
	c.LockStore = dynamodb.NewLockStore(client, table, pods, c.Logger)
	return nil
}

func (c *Container) buildRealtime() {
	cfg := c.Config

	c.Coordinator = locking.NewCoordinator(c.LockStore, cfg.Realtime.LockTTL, c.Logger)
	c.Hub = websocket.NewHub(c.Metrics, c.Logger)
	c.Hub.SetDisconnectHandler(func(sessionID, userID string) {
		// Per-pod release failures are logged by the coordinator itself.
		c.Coordinator.ReleaseAll(context.Background(), sessionID)
	})
	c.Broadcaster = websocket.NewBroadcaster(c.Hub, cfg.Realtime.DebounceWindow, c.Metrics, c.Logger)

	c.JWTService = auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)

	wsConfig := websocket.DefaultServerConfig()
	wsConfig.MaxSessions = cfg.Realtime.MaxSessionsPerUser
	c.WSServer = websocket.NewServer(c.Hub, c.JWTService, wsConfig, c.Logger)
}

func (c *Container) buildServices() {
	c.CanvasService = services.NewCanvasService(
		c.Pods, c.Edges, c.Flows, c.Coordinator, c.Broadcaster, c.Logger)
	c.MoveService = services.NewMoveService(
		c.Pods, c.Edges, c.Flows, c.Coordinator, c.Broadcaster, c.Logger)
	c.FlowService = services.NewFlowService(
		c.Flows, c.Pods, c.Broadcaster, c.Logger)
	c.NotificationService = services.NewNotificationService(
		c.Notifications, c.Broadcaster, c.Logger)
}

func (c *Container) buildWatcher() error {
	watcher, err := config.NewWatcher(c.Config, c.Logger)
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	watcher.OnChange(func(cfg *config.Config) {
		if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
			c.logLevel.SetLevel(level.Level())
		}
	})
	c.Watcher = watcher
	return nil
}

// Start launches the hub event loop
func (c *Container) Start() {
	go c.Hub.Run()
}

// Shutdown stops background components and flushes the logger
func (c *Container) Shutdown() {
	c.Hub.Stop()
	if c.Watcher != nil {
		c.Watcher.Stop()
	}
	_ = c.Logger.Sync()
}
