package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/agent-events/common/logging"
	natsclient "github.com/telhawk-systems/agent-events/common/messaging/nats"
	"github.com/telhawk-systems/agent-events/common/middleware"
	"github.com/telhawk-systems/agent-events/internal/agentconfig"
	"github.com/telhawk-systems/agent-events/internal/auth"
	"github.com/telhawk-systems/agent-events/internal/codec"
	"github.com/telhawk-systems/agent-events/internal/config"
	"github.com/telhawk-systems/agent-events/internal/filter"
	"github.com/telhawk-systems/agent-events/internal/handlers"
	"github.com/telhawk-systems/agent-events/internal/queue"
	"github.com/telhawk-systems/agent-events/internal/repository"
	"github.com/telhawk-systems/agent-events/internal/selector"
	"github.com/telhawk-systems/agent-events/internal/server"
	"github.com/telhawk-systems/agent-events/internal/service"
)

// app is a fully wired service. Close releases its resources in reverse order.
type app struct {
	handler http.Handler
	closers []func() error
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	registry := codec.DefaultRegistry()
	pipeline := codec.NewPipeline(registry, logger)

	repo, err := openRepository(ctx, cfg.Repository, pipeline)
	if err != nil {
		return nil, err
	}
	a.onClose(repo.Close)
	logger.Info("Event repository ready", logging.Backend(cfg.Repository.Backend))

	publisher, err := openQueue(a, cfg.Queue, pipeline, repo, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Event queue ready", logging.Backend(cfg.Queue.Backend))

	store, err := openAgentConfigStore(ctx, a, cfg.AgentConfig)
	if err != nil {
		return nil, err
	}
	validator, err := agentconfig.NewValidator()
	if err != nil {
		return nil, err
	}
	var fallback json.RawMessage
	if cfg.AgentConfig.Fallback {
		fallback = agentconfig.Default()
	}
	configService := agentconfig.NewService(store, validator, fallback)

	events := service.NewEventService(filter.NewParser(registry.Types()), selector.New(repo), pipeline, publisher, logger)
	h := handlers.NewHandler(events, configService, logger, cfg.Server.MaxBodyBytes)

	if !cfg.Auth.Enabled {
		logger.Warn("Authentication disabled; every caller holds every role")
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	a.handler = server.NewRouter(h, auth.NewMiddleware(tokens, cfg.Auth.Enabled, logger), corsConfig(cfg.Server.CORS), logger)
	return a, nil
}

func openRepository(ctx context.Context, cfg config.RepositoryConfig, pipeline *codec.Pipeline) (repository.Repository, error) {
	timeouts := repository.WithTimeouts(cfg.Timeouts)
	switch cfg.Backend {
	case repository.BackendMemory:
		return repository.NewMemoryRepository(), nil
	case repository.BackendSQLite:
		return repository.NewSQLiteRepository(ctx, cfg.SQLite.Path, pipeline, timeouts)
	case repository.BackendPostgres:
		conn := cfg.Postgres.ConnString()
		if err := repository.Migrate(conn); err != nil {
			return nil, err
		}
		return repository.NewPostgresRepository(ctx, conn, pipeline, timeouts)
	case repository.BackendOpenSearch:
		return repository.NewOpenSearchRepository(ctx, repository.OpenSearchConfig{
			URL:      cfg.OpenSearch.URL,
			Username: cfg.OpenSearch.Username,
			Password: cfg.OpenSearch.Password,
			Insecure: cfg.OpenSearch.Insecure,
			Index:    cfg.OpenSearch.Index,
			PageSize: cfg.OpenSearch.PageSize,
		}, pipeline, timeouts)
	default:
		return nil, fmt.Errorf("unknown repository backend %q", cfg.Backend)
	}
}

func openQueue(a *app, cfg config.QueueConfig, pipeline *codec.Pipeline, repo repository.Repository, logger *logging.Logger) (queue.Publisher, error) {
	switch cfg.Backend {
	case queue.BackendLocal:
		local := queue.NewLocalQueue()
		local.Subscribe(queue.Persist(repo))
		return local, nil
	case queue.BackendNATS:
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
		natsCfg.ReconnectWait = cfg.NATS.ReconnectWait
		natsCfg.Token = cfg.NATS.Token

		client, err := natsclient.NewClient(natsCfg, logger.Logger)
		if err != nil {
			return nil, err
		}
		a.onClose(client.Drain)

		if cfg.NATS.Consume {
			consumer := queue.NewConsumer(client, pipeline, repo, logger)
			if err := consumer.Start(); err != nil {
				return nil, err
			}
			a.onClose(consumer.Stop)
		} else {
			logger.Info("NATS consumer disabled; events are only published", slog.String("url", cfg.NATS.URL))
		}
		return queue.NewNATSQueue(client, pipeline), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

func openAgentConfigStore(ctx context.Context, a *app, cfg config.AgentConfigConfig) (agentconfig.Store, error) {
	switch cfg.Backend {
	case agentconfig.BackendMemory:
		return agentconfig.NewMemoryStore(), nil
	case agentconfig.BackendRedis:
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		a.onClose(client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return agentconfig.NewRedisStore(client, cfg.Redis.Key), nil
	default:
		return nil, fmt.Errorf("unknown agent configuration backend %q", cfg.Backend)
	}
}

func corsConfig(cfg config.CORSConfig) middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	}
}

func serverOptions(cfg config.ServerConfig) server.Options {
	return server.Options{
		Port:            cfg.Port,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
}
