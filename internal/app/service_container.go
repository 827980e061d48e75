package app

import (
	"context"
	"fmt"
	"log"
	"sync"

	"gorm.io/gorm"

	"darkpool-backend/internal/config"
	"darkpool-backend/internal/db"
	"darkpool-backend/internal/events"
	"darkpool-backend/internal/repository"
	"darkpool-backend/internal/services"
)

// ServiceContainer wires repositories and services once at startup.
type ServiceContainer struct {
	// Database
	DB *gorm.DB

	// Repositories
	OrderRepo       repository.OrderRepository
	MatchRepo       repository.MatchRepository
	ChannelRepo     repository.ChannelRepository
	TradingPairRepo repository.TradingPairRepository
	BalanceRepo     repository.BalanceRepository

	// Event publishing
	Publisher *events.Publisher

	// Core Services
	KeyProvider    services.KeyProvider
	PairRegistry   *services.PairRegistry
	Settlement     services.Settlement
	MatchingEngine *services.MatchingEngine
	ChannelLedger  *services.ChannelLedger
	BalanceBook    *services.BalanceBook
	PushService    *services.PushService
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container exactly once.
func InitializeContainer() (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		log.Println("🚀 Initializing Service Container...")

		container := &ServiceContainer{DB: db.DB}

		container.initRepositories()

		if err := container.initEventServices(); err != nil {
			// Event publishing is optional; the exchange runs without it.
			log.Printf("⚠️ Event services initialization skipped or failed: %v", err)
		}

		if err := container.initCoreServices(); err != nil {
			initErr = fmt.Errorf("failed to initialize core services: %w", err)
			return
		}

		Container = container
		log.Println("✅ Service Container initialized successfully")
	})

	return Container, initErr
}

func (c *ServiceContainer) initRepositories() {
	log.Println("📦 Initializing Repositories...")

	if c.DB == nil {
		log.Println("⚠️ Database unavailable, repositories disabled")
		return
	}
	c.OrderRepo = repository.NewOrderRepository(c.DB)
	c.MatchRepo = repository.NewMatchRepository(c.DB)
	c.ChannelRepo = repository.NewChannelRepository(c.DB)
	c.TradingPairRepo = repository.NewTradingPairRepository(c.DB)
	c.BalanceRepo = repository.NewBalanceRepository(c.DB)
}

func (c *ServiceContainer) initEventServices() error {
	if config.AppConfig == nil || config.AppConfig.NATS.URL == "" {
		return fmt.Errorf("NATS not configured")
	}
	publisher, err := events.NewPublisher(&config.AppConfig.NATS)
	if err != nil {
		return err
	}
	c.Publisher = publisher
	return nil
}

func (c *ServiceContainer) initCoreServices() error {
	log.Println("🔧 Initializing Core Services...")

	keys, err := services.NewConfigKeyProvider(&config.AppConfig.Engine)
	if err != nil {
		return fmt.Errorf("engine key: %w", err)
	}
	c.KeyProvider = keys

	pairs, err := services.NewPairRegistry(context.Background(), c.TradingPairRepo)
	if err != nil {
		return fmt.Errorf("pair registry: %w", err)
	}
	c.PairRegistry = pairs

	balances, err := services.NewBalanceBook(context.Background(), c.BalanceRepo)
	if err != nil {
		return fmt.Errorf("balance book: %w", err)
	}
	c.BalanceBook = balances

	settlement := services.NewEventSettlement(c.Publisher)
	c.Settlement = settlement

	c.MatchingEngine = services.NewMatchingEngine(
		&config.AppConfig.Engine,
		keys,
		pairs,
		c.Settlement,
		c.OrderRepo,
		c.MatchRepo,
		c.Publisher,
	)

	c.ChannelLedger = services.NewChannelLedger(
		&config.AppConfig.Channels,
		c.ChannelRepo,
		c.Settlement,
		c.Publisher,
	)

	c.PushService = services.NewPushService()
	settlement.AttachPushService(c.PushService)
	return nil
}

// Shutdown stops background work in dependency order.
func (c *ServiceContainer) Shutdown() {
	log.Println("🛑 Shutting down Service Container...")
	if c.MatchingEngine != nil {
		c.MatchingEngine.Stop()
	}
	if c.Publisher != nil {
		c.Publisher.Close()
	}
}
