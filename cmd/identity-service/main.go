// cmd/identity-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"idbroker/internal/accessctl"
	"idbroker/internal/directory"
	"idbroker/internal/federation"
	"idbroker/internal/provision"
	"idbroker/internal/userindex"
	"idbroker/pkg/awspolicy"
	"idbroker/pkg/config"
	"idbroker/pkg/credcache"
	"idbroker/pkg/logger"
	"idbroker/pkg/middleware"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	cancel()
	if err != nil {
		log.Fatalw("aws config", "err", err)
	}

	accountID := cfg.AWSAccountID
	if accountID == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		accountID, err = federation.DiscoverAccountID(ctx, awsCfg)
		cancel()
		if err != nil {
			log.Fatalw("account discovery", "err", err)
		}
		log.Infow("account discovered", "account_id", accountID)
	}

	var cache credcache.Cache = credcache.NewMemory()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalw("redis url", "err", err)
		}
		cache = credcache.NewRedis(redis.NewClient(opts), log)
	}

	dirs := directory.New(awsCfg, log)
	acc := accessctl.New(awsCfg, log)
	fed := federation.New(awsCfg, accountID, log)
	idx := userindex.New(awsCfg, cfg.Tables.User, log)
	ex := federation.NewExchanger(awsCfg, accountID, userindex.PoolLookup{Index: idx}, cache, cfg.CredCacheTTLCap, log)

	svc := provision.NewService(dirs, acc, fed, idx, awspolicy.Params{
		AccountID:    accountID,
		Region:       cfg.AWSRegion,
		TenantTable:  cfg.Tables.Tenant,
		UserTable:    cfg.Tables.User,
		ProductTable: cfg.Tables.Product,
		OrderTable:   cfg.Tables.Order,
	}, cfg.ProviderTimeout, log)

	app := &provision.App{Log: log, Svc: svc, Idx: idx, Dirs: dirs}

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.Tracing("identity-service"))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Mount("/", provision.NewRouter(app, middleware.ScopedCredentials(ex, log)))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Infow("identity-service listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("identity-service stopped")
}
