// Package app wires the services of the suite together.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"whatsapp-suite/internal/api"
	"whatsapp-suite/internal/campaigns"
	"whatsapp-suite/internal/chatbot"
	"whatsapp-suite/internal/config"
	"whatsapp-suite/internal/contacts"
	"whatsapp-suite/internal/dispatch"
	"whatsapp-suite/internal/history"
	"whatsapp-suite/internal/middleware"
	"whatsapp-suite/internal/providers"
	"whatsapp-suite/internal/scheduler"
	"whatsapp-suite/internal/templates"
	"whatsapp-suite/internal/threads"
	"whatsapp-suite/internal/webhook"
	"whatsapp-suite/internal/whatsapp"
	"whatsapp-suite/internal/ws"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	Config *config.Config
	DB     *gorm.DB
	Log    *zap.Logger

	Hub        *ws.Hub
	Providers  *providers.Service
	Templates  *templates.Service
	History    *history.Store
	Contacts   *contacts.Resolver
	Threads    *threads.Service
	Dispatcher *dispatch.Dispatcher
	Chatbots   *chatbot.Store
	Engine     *chatbot.Engine
	Ingester   *webhook.Ingester
	Campaigns  *campaigns.Service
	Lists      *campaigns.Lists
}

// New builds every service on top of an open database. clients is
// normally whatsapp.NewFactory.
func New(cfg *config.Config, db *gorm.DB, clients whatsapp.Factory, log *zap.Logger) *App {
	a := &App{Config: cfg, DB: db, Log: log}

	a.Hub = ws.NewHub(log)
	a.Providers = providers.NewService(db, clients, cfg.BaseURL, log)
	a.Templates = templates.NewService(db, clients, templates.NewDefaultRegistry(), log)
	a.History = history.NewStore(db)
	a.Contacts = contacts.NewResolver(db, log)
	a.Threads = threads.NewService(db, a.Hub, log)
	a.Dispatcher = dispatch.New(db, clients, a.Templates, a.Providers, a.Threads, a.History, log)
	a.Chatbots = chatbot.NewStore(db)
	a.Engine = chatbot.NewEngine(a.Dispatcher, a.Threads, a.History, chatbot.NewDBRecordCreator(db), cfg.CompanyName, log)
	a.Ingester = webhook.NewIngester(a.Contacts, a.Providers, a.History, a.Threads, a.Engine, a.Hub, log)
	a.Campaigns = campaigns.NewService(db, a.Dispatcher, a.Templates.Registry(), a.Contacts, log)
	a.Lists = campaigns.NewLists(db)
	return a
}

// Router returns the gin engine serving the webhook, the management API
// and the websocket feed.
func (a *App) Router(limiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logger(a.Log.Named("http")),
		middleware.Recovery(a.Log),
		middleware.CORS(a.Config.CORSOrigins),
	)
	if limiter != nil {
		r.Use(limiter.Middleware())
	}

	webhook.NewHandler(a.Ingester, a.Providers, a.Chatbots, a.Log).Register(r)
	api.NewServer(api.Deps{
		Providers:  a.Providers,
		Templates:  a.Templates,
		Dispatcher: a.Dispatcher,
		History:    a.History,
		Contacts:   a.Contacts,
		Campaigns:  a.Campaigns,
		Lists:      a.Lists,
		Chatbots:   a.Chatbots,
		Threads:    a.Threads,
		Hub:        a.Hub,
	}, a.Log).Register(r)
	return r
}

// SweepJob sends the due campaigns.
func (a *App) SweepJob(ctx context.Context) error {
	n, err := a.Campaigns.Sweep(ctx)
	if n > 0 {
		a.Log.Info("Campaign sweep finished", zap.Int("campaigns", n))
	}
	return err
}

// Serve runs the HTTP server, the websocket hub and the campaign scheduler
// until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	go a.Hub.Run(ctx)

	limiter := middleware.NewRateLimiter(rate.Limit(a.Config.RateLimit), a.Config.RateLimitBurst)
	go limiter.Cleanup(ctx)

	sweeper := scheduler.NewScheduler("campaigns", a.Config.SweepInterval, a.SweepJob, a.Log)
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := sweeper.Stop(); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
			a.Log.Warn("Failed to stop scheduler", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              ":" + a.Config.Port,
		Handler:           a.Router(limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("base_url", a.Config.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
