package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/corvuslabs/notebase/internal/auth/flow"
	"github.com/corvuslabs/notebase/internal/auth/github"
	"github.com/corvuslabs/notebase/internal/auth/google"
	notionauth "github.com/corvuslabs/notebase/internal/auth/notion"
	"github.com/corvuslabs/notebase/internal/auth/token"
	"github.com/corvuslabs/notebase/internal/billing"
	"github.com/corvuslabs/notebase/internal/config"
	"github.com/corvuslabs/notebase/internal/db"
	"github.com/corvuslabs/notebase/internal/httpapi"
	"github.com/corvuslabs/notebase/internal/identity"
	"github.com/corvuslabs/notebase/internal/metrics"
	"github.com/corvuslabs/notebase/internal/notify"
	"github.com/corvuslabs/notebase/internal/notion"
	"github.com/corvuslabs/notebase/internal/providers/catalog"
	"github.com/corvuslabs/notebase/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}

	providers, err := catalog.Load(cfg.OAuth.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to load provider catalog: %v", err)
	}

	// Notification sink: a noop unless Pushover is configured.
	var notifier identity.Notifier = notify.Noop{}
	if cfg.Pushover.APIToken != "" && cfg.Pushover.UserKey != "" {
		notifier = notify.NewPushover(cfg.Pushover.APIToken, cfg.Pushover.UserKey, cfg.Pushover.Device, cfg.Server.AppURL)
	}

	store := identity.NewGormStore(database)
	bootstrap := identity.NewBootstrap()
	resolver := identity.NewResolver(store, bootstrap, notifier)
	tokens := token.NewManager(cfg.JWT.Secret)
	authFlow := flow.New(resolver, tokens)

	billingCache := billing.NewCache(redisClient)
	syncer := billing.NewSyncer(billingCache, billing.NewRESTSource(cfg.Stripe.APIKey))

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(httpapi.Authenticator(tokens, database))

	authLimiter := httpapi.NewRateLimiter("auth", rate.Limit(1), 10)

	r.Route("/auth", func(r chi.Router) {
		r.Use(authLimiter.Middleware)

		if settings, ok := providers.Lookup("google"); ok && settings.Enabled {
			h, err := google.New(context.Background(), cfg.OAuth.Google, settings, cfg.Server.StateSecret, authFlow)
			if err != nil {
				log.Fatalf("Failed to initialize google provider: %v", err)
			}
			r.Get("/google", h.Login)
			r.Get("/google/callback", h.Callback)
		}

		if settings, ok := providers.Lookup("github"); ok && settings.Enabled {
			h := github.New(cfg.OAuth.GitHub, settings, cfg.Server.StateSecret, authFlow)
			r.Get("/github", h.Login)
			r.Get("/github/callback", h.Callback)
		}

		if settings, ok := providers.Lookup("notion"); ok && settings.Enabled {
			h := notionauth.New(cfg.OAuth.Notion, settings, cfg.Server.StateSecret, authFlow, notion.NewStore(database), syncer)
			r.Get("/notion", h.Login)
			r.Get("/notion/callback", h.Callback)
		}

		r.With(httpapi.RequireUser).Get("/profile", httpapi.ProfileHandler)
	})

	r.Post("/stripe", billing.WebhookHandler(syncer, cfg.Stripe.WebhookSecret))
	r.With(httpapi.RequireUser).Get("/stripe/success", billing.SuccessHandler(syncer, billingCache, func(r *http.Request) (uint, bool) {
		user := httpapi.UserFrom(r.Context())
		if user == nil {
			return 0, false
		}
		return user.ID, true
	}))

	if cfg.Storage.Endpoint != "" {
		objects, err := storage.New(cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to initialize object storage: %v", err)
		}
		r.Route("/api/storage", func(r chi.Router) {
			r.Use(httpapi.RequireUser)
			r.Post("/", storage.UploadHandler(objects))
			r.Get("/{key}", storage.DownloadHandler(objects))
		})
	}

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := cfg.Addr()
	log.Printf("notebase listening on http://%s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
