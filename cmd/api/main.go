package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"digitals.local/internal/app/digital"
	dlcache "digitals.local/internal/app/digital/cache"
	"digitals.local/internal/app/digital/events"
	"digitals.local/internal/app/digital/httpapi"
	"digitals.local/internal/app/digital/repo"
	"digitals.local/internal/app/shipping"
	"digitals.local/internal/platform/auth"
	platformcache "digitals.local/internal/platform/cache"
	"digitals.local/internal/platform/config"
	"digitals.local/internal/platform/db"
	"digitals.local/internal/platform/httpmiddleware"
	"digitals.local/internal/platform/httpserver"
	"digitals.local/internal/platform/metrics"
	"digitals.local/internal/platform/migrate"
	"digitals.local/internal/platform/ratelimit"
	"digitals.local/internal/platform/trace"
	"digitals.local/migrations"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	slog.SetDefault(slog.New(h))

	// DB
	dbCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	dbPool, errDB := db.New(dbCtx, cfg.DBDSN)
	if errDB != nil {
		log.Fatal(errDB)
	}
	defer dbPool.Close()
	if err := dbPool.Ping(dbCtx); err != nil {
		log.Fatal(err)
	}
	slog.Info("database connected")

	if cfg.MigrateOnStart {
		migCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		res, err := migrate.Up(migCtx, dbPool, migrations.FS)
		cancel()
		if err != nil {
			log.Fatal(err)
		}
		slog.Info("migrations done", "applied", len(res.Applied), "skipped", len(res.Skipped))
	}

	// Redis：限流与负缓存共用
	redisClient, errRedis := platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if errRedis != nil {
		log.Fatal(errRedis)
	}
	defer redisClient.Close()

	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewLimiter(redisClient)
	} else {
		slog.Warn("rate limit disabled by config", "RATELIMIT_ENABLED", false)
	}

	var secretCache *dlcache.SecretCache
	if cfg.NegativeCacheEnabled {
		localCache, err := dlcache.NewLocalCache(100_000, 10*time.Second)
		if err != nil {
			log.Fatal(err)
		}
		secretCache = dlcache.NewSecretCache(redisClient, localCache)
		defer secretCache.Close()
	}

	// 多实例部署时各实例的 bloom 互不同步，其他实例新建的 secret 会被误判为不存在
	var bloomFilter *dlcache.BloomFilter
	if cfg.SecretBloomEnabled {
		bloomFilter = dlcache.NewBloomFilter(1_000_000, 0.01)
	}

	var hook digital.CreateHook = digital.DRMMark{}
	if cfg.DRMRecordsEnabled {
		hook = repo.NewDRMRecords(dbPool, cfg.DBTimeout)
	}

	linksRepo := repo.NewLinksRepo(dbPool, secretCache, bloomFilter, hook, cfg.DBTimeout)
	digitalsRepo := repo.NewDigitalsRepo(dbPool)

	if bloomFilter != nil {
		warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := linksRepo.WarmBloom(warmCtx)
		cancel()
		if err != nil {
			log.Fatal(err)
		}
		slog.Info("secret bloom filter warmed", "secrets", n)
	}

	settings := digital.NewSettings(digital.NewAuthorizationConfig(cfg.AuthorizedClicks, cfg.AuthorizedDays))

	// 访问事件（根据配置选择 Channel 或 Kafka）
	sink := events.NewPGSink(dbPool)
	var collector events.Collector
	var kafkaConsumer *events.KafkaConsumer
	var channelConsumer *events.Consumer
	if cfg.KafkaEnabled {
		slog.Info("access events via kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		collector = events.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		kafkaConsumer = events.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, sink)
	} else {
		slog.Info("access events via channel")
		channelCollector := events.NewChannelCollector(10000)
		collector = channelCollector
		channelConsumer = events.NewConsumer(sink, channelCollector)
	}

	// JWT
	ts, jwtErr := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if jwtErr != nil {
		log.Fatal(jwtErr)
	}

	metrics.Init()

	if cfg.TracingEnabled {
		shutdown := trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName, version)
		if shutdown == nil {
			slog.Error("trace init failed")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error("trace shutdown failed", "err", err)
				}
			}()
		}
	} else {
		slog.Warn("tracing disabled by config", "TRACING_ENABLED", false)
	}

	deps := httpapi.Deps{
		Links:      linksRepo,
		Catalog:    digitalsRepo,
		Authorizer: digital.NewAuthorizer(linksRepo),
		Settings:   settings,
		Events:     collector,
		Delivery: shipping.NewDigitalDelivery(shipping.Preferences{
			Amount:   cfg.DigitalDeliveryAmount,
			Currency: cfg.DefaultCurrency,
		}),
		Tokens:        ts,
		Limiter:       limiter,
		DownloadLimit: cfg.DownloadRateLimit,
	}

	// 对外业务
	r := mux.NewRouter()
	r.Use(httpmiddleware.TraceName)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")

	httpapi.RegisterPublicRoutes(r, deps)
	httpapi.RegisterAPIRoutes(r.PathPrefix("/api/v1").Subrouter(), deps)

	publicHandler := httpmiddleware.ReqID(httpmiddleware.Recovery(httpmiddleware.AccessLog(httpmiddleware.Metrics(r))))
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(publicHandler, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := dbPool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db ping failed"))
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("redis ping failed"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})
	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	adminSrv := httpserver.NewWithAddr(cfg, cfg.AdminAddr, adminMux)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if kafkaConsumer != nil {
		go kafkaConsumer.Run(stopCtx)
		defer kafkaConsumer.Close()
	}
	if channelConsumer != nil {
		go channelConsumer.Run(stopCtx)
	}
	defer collector.Close()

	errch := make(chan error, 2)
	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(stopCtx, publicSrv, cfg.ShutdownTimeout)
	}()
	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(stopCtx, adminSrv, cfg.ShutdownTimeout)
	}()
	slog.Info("digitals started", "addr", cfg.Addr, "admin_addr", cfg.AdminAddr, "version", version)

	err := <-errch
	if err != nil {
		stop()
		select {
		case <-errch:
		case <-time.After(cfg.ShutdownTimeout + time.Second):
		}
		log.Fatal(err)
	}

	stop()
	<-errch
}
