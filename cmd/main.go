package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/atrium-social/atrium/ap"
	"github.com/atrium-social/atrium/apclient"
	"github.com/atrium-social/atrium/httpsig"
	"github.com/atrium-social/atrium/store"
	"github.com/atrium-social/atrium/types"
	"github.com/atrium-social/atrium/worker"
)

var (
	version      = "unknown"
	buildMachine = "unknown"
	buildTime    = "unknown"
	goVersion    = "unknown"
)

func main() {
	genkey := flag.Bool("genkey", false, "generate an actor keypair and exit")
	flag.Parse()

	if *genkey {
		priv, pub, err := httpsig.GenerateKeyPair()
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("privateKeyPem: |\n%s\npublicKeyPem: |\n%s\n", indent(priv), indent(pub))
		return
	}

	e := echo.New()

	configPaths := []string{}
	configPath := os.Getenv("ATRIUM_CONFIG")
	if configPath != "" {
		configPaths = append(configPaths, configPath)
	}

	additionalConfigs := os.Getenv("ATRIUM_CONFIGS")
	if additionalConfigs != "" {
		configPaths = append(configPaths, strings.Split(additionalConfigs, ":")...)
	}

	if len(configPaths) == 0 {
		configPaths = append(configPaths, "/etc/atrium/config/config.yaml")
	}

	config, err := LoadConfig(configPaths)
	if err != nil {
		slog.Error("Failed to load config: ", slog.String("error", err.Error()))
		panic(err)
	}

	if config.ApConfig.FQDN == "" || config.ApConfig.Username == "" {
		slog.Error("Config is missing apConfig.fqdn or apConfig.username")
		panic("incomplete config")
	}
	if _, err := httpsig.ParsePrivateKey(config.ApConfig.PrivateKeyPem); err != nil {
		slog.Error("Failed to parse actor private key: ", slog.String("error", err.Error()))
		panic(err)
	}

	slog.Info(fmt.Sprintf("Atrium %s starting...", version))
	slog.Info(fmt.Sprintf("ApConfig loaded! Actor: %s", config.ApConfig.ActorURL()))

	config.NodeInfo.Version = "2.0"
	config.NodeInfo.Software.Name = "atrium"
	config.NodeInfo.Software.Version = version
	config.NodeInfo.Protocols = []string{"activitypub"}

	e.HidePort = true
	e.HideBanner = true

	if config.Server.EnableTrace {
		cleanup, err := SetupTraceProvider(config.Server.TraceEndpoint, config.ApConfig.FQDN+"/atrium", version)
		if err != nil {
			panic(err)
		}
		defer cleanup()

		skipper := otelecho.WithSkipper(
			func(c echo.Context) bool {
				return c.Path() == "/metrics" || c.Path() == "/health"
			},
		)
		e.Use(otelecho.Middleware(config.ApConfig.FQDN, skipper))
	}

	e.Use(echoprometheus.NewMiddleware("atrium"))
	e.Use(middleware.Recover())

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             300 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  logger.Warn,            // Log level
			IgnoreRecordNotFoundError: true,                   // Ignore ErrRecordNotFound error for logger
			Colorful:                  true,                   // Enable color
		},
	)

	db, err := gorm.Open(postgres.Open(config.Server.Dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		panic("failed to connect database")
	}
	sqlDB, err := db.DB() // for pinging
	if err != nil {
		panic("failed to connect database")
	}
	defer sqlDB.Close()

	err = db.Use(tracing.NewPlugin(
		tracing.WithDBName("postgres"),
	))
	if err != nil {
		panic("failed to setup tracing plugin")
	}

	mc := memcache.New(config.Server.MemcachedAddr)
	defer mc.Close()

	// Migrate the schema
	log.Println("start migrate")
	db.AutoMigrate(
		&types.ApActor{},
		&types.ApFollow{},
		&types.ApInboxEntry{},
	)

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Server.RedisAddr,
		Password: "", // no password set
		DB:       config.Server.RedisDB,
	})
	err = redisotel.InstrumentTracing(
		rdb,
		redisotel.WithAttributes(
			attribute.KeyValue{
				Key:   "db.name",
				Value: attribute.StringValue("redis"),
			},
		),
	)
	if err != nil {
		panic("failed to setup tracing plugin")
	}

	storeService := store.NewStore(db)

	signer, err := httpsig.NewSigner(config.ApConfig.KeyID(), config.ApConfig.PrivateKeyPem)
	if err != nil {
		panic(err)
	}
	apclient := apclient.NewApClient(mc, signer, config.ApConfig)

	apService := ap.NewService(
		storeService,
		apclient,
		rdb,
		config.NodeInfo,
		config.ApConfig,
	)
	apHandler := ap.NewHandler(apService)

	worker := worker.NewWorker(rdb, storeService, apService)
	go worker.Run(context.Background())

	e.GET("/.well-known/host-meta", apHandler.HostMeta)
	e.GET("/.well-known/webfinger", apHandler.WebFinger)
	e.GET("/.well-known/nodeinfo", apHandler.NodeInfoWellKnown)
	e.GET("/nodeinfo/2.0", apHandler.NodeInfo)

	e.GET("/actors/:username", apHandler.Actor)
	e.POST("/actors/:username/inbox", apHandler.Inbox)

	e.POST("/system/inbox/sync", apHandler.SyncInbox)
	e.POST("/system/inbox/cleanup", apHandler.CleanupInbox)

	e.GET("/health", func(c echo.Context) (err error) {
		ctx := c.Request().Context()

		err = sqlDB.Ping()
		if err != nil {
			return c.String(http.StatusInternalServerError, "db error")
		}

		err = rdb.Ping(ctx).Err()
		if err != nil {
			return c.String(http.StatusInternalServerError, "redis error")
		}

		return c.String(http.StatusOK, "ok")
	})

	e.GET("/metrics", echoprometheus.NewHandler())

	port := ":8000"
	envport := os.Getenv("ATRIUM_PORT")
	if envport != "" {
		port = ":" + envport
	}

	e.Logger.Fatal(e.Start(port))
}

func indent(pem string) string {
	return "  " + strings.ReplaceAll(strings.TrimRight(pem, "\n"), "\n", "\n  ")
}
