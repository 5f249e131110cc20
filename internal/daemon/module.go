// Package daemon wires the tabchat daemon together: one fx module holding
// the store, the chat core, topic detection, presence, and the HTTP API.
package daemon

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/caioluan/tabchat/internal/authn"
	"github.com/caioluan/tabchat/internal/bus"
	"github.com/caioluan/tabchat/internal/chat"
	"github.com/caioluan/tabchat/internal/classify"
	"github.com/caioluan/tabchat/internal/config"
	"github.com/caioluan/tabchat/internal/docstore"
	"github.com/caioluan/tabchat/internal/httpapi"
	"github.com/caioluan/tabchat/internal/lock"
	"github.com/caioluan/tabchat/internal/logging"
	"github.com/caioluan/tabchat/internal/media"
	"github.com/caioluan/tabchat/internal/presence"
	"github.com/caioluan/tabchat/internal/profile"
	"github.com/caioluan/tabchat/internal/topic"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	Config      *config.Config
	ListenAddr  string // optional override for testing; empty = use config
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			providePresence,
			provideAuth,
			provideMedia,
			provideClassifier,
			provideUsers,
			provideRegistry,
			provideTabs,
			provideSequencer,
			provideTopicEngine,
			provideHeartbeater,
			provideRouter,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.LockPath(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*docstore.SQLite, error) {
	dbPath := profile.DBPath(p.ProfileName)
	store, err := docstore.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := store.Migrate()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return store, nil
}

func providePresence(p Params, logger *zap.Logger) presence.Store {
	if p.Config.Redis.Addr == "" {
		logger.Info("presence: in-memory store (no redis configured)")
		return presence.NewMemory()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     p.Config.Redis.Addr,
		Password: p.Config.Redis.Password,
		DB:       p.Config.Redis.DB,
	})
	logger.Info("presence: redis store", zap.String("addr", p.Config.Redis.Addr))
	return presence.NewRedis(rdb)
}

func provideAuth(p Params, logger *zap.Logger) authn.Provider {
	return authn.NewGateway(p.Config.Auth.BaseURL, profile.Dir(p.ProfileName), logger)
}

func provideMedia(p Params, logger *zap.Logger) media.Uploader {
	return media.NewHTTP(p.Config.Media.BaseURL, logger)
}

func provideClassifier(p Params, logger *zap.Logger) classify.Classifier {
	if p.Config.Classifier.BaseURL == "" && p.Config.Classifier.APIKey == "" {
		logger.Info("topic classifier disabled, keyword fallback only")
		return nil
	}
	return classify.NewOpenAI(
		p.Config.Classifier.BaseURL,
		p.Config.Classifier.APIKey,
		p.Config.Classifier.Model,
		p.Config.Topic.Timeout(),
		logger,
	)
}

func provideUsers(store *docstore.SQLite, ps presence.Store, b *bus.Bus, logger *zap.Logger) *chat.Users {
	return chat.NewUsers(store, ps, b, logger)
}

func provideRegistry(store *docstore.SQLite, b *bus.Bus, logger *zap.Logger) *chat.Registry {
	return chat.NewRegistry(store, b, logger)
}

func provideTabs(store *docstore.SQLite, b *bus.Bus, logger *zap.Logger) *chat.Tabs {
	return chat.NewTabs(store, b, logger)
}

func provideSequencer(store *docstore.SQLite, registry *chat.Registry, tabs *chat.Tabs, b *bus.Bus, logger *zap.Logger) *chat.Sequencer {
	return chat.NewSequencer(store, registry, tabs, b, logger)
}

func provideTopicEngine(p Params, tabs *chat.Tabs, msgs *chat.Sequencer, cl classify.Classifier, b *bus.Bus, logger *zap.Logger) (*topic.Engine, error) {
	cfg := topic.Config{
		MinMessages: p.Config.Topic.MinMessages,
		MaxMessages: p.Config.Topic.MaxMessages,
		Timeout:     p.Config.Topic.Timeout(),
	}
	if path := p.Config.Topic.StopwordsPath; path != "" {
		words, err := topic.LoadStopwords(path)
		if err != nil {
			return nil, err
		}
		cfg.Stopwords = words
	}
	return topic.NewEngine(tabs, msgs, cl, b, logger, cfg), nil
}

func provideHeartbeater(auth authn.Provider, ps presence.Store, logger *zap.Logger) *presence.Heartbeater {
	return presence.NewHeartbeater(ps, auth.CurrentUserID, logger)
}

func provideRouter(auth authn.Provider, users *chat.Users, registry *chat.Registry, tabs *chat.Tabs, msgs *chat.Sequencer, engine *topic.Engine, up media.Uploader, b *bus.Bus, logger *zap.Logger) *gin.Engine {
	return httpapi.NewRouter(httpapi.Deps{
		Auth:     auth,
		Users:    users,
		Registry: registry,
		Tabs:     tabs,
		Messages: msgs,
		Topics:   engine,
		Media:    up,
		Bus:      b,
		Logger:   logger,
	})
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, store *docstore.SQLite, engine *topic.Engine, hb *presence.Heartbeater, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Topic detection subscribes to message events.
			engine.Start(context.Background())
			hb.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			hb.Stop()
			engine.Stop()
			srv.Stop(ctx)
			if err := store.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
