package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/whiskertrace/trapper/config"
	animalrepo "github.com/whiskertrace/trapper/internal/repositories/animal"
	blacklistrepo "github.com/whiskertrace/trapper/internal/repositories/blacklist"
	decisionrepo "github.com/whiskertrace/trapper/internal/repositories/decision"
	edgerepo "github.com/whiskertrace/trapper/internal/repositories/edge"
	identifierrepo "github.com/whiskertrace/trapper/internal/repositories/identifier"
	linkskiprepo "github.com/whiskertrace/trapper/internal/repositories/linkskip"
	personrepo "github.com/whiskertrace/trapper/internal/repositories/person"
	placerepo "github.com/whiskertrace/trapper/internal/repositories/place"
	visitrepo "github.com/whiskertrace/trapper/internal/repositories/visit"
	"github.com/whiskertrace/trapper/pkg/database"
	"github.com/whiskertrace/trapper/pkg/dedup"
	"github.com/whiskertrace/trapper/pkg/events"
	"github.com/whiskertrace/trapper/pkg/gate"
	"github.com/whiskertrace/trapper/pkg/graph"
	"github.com/whiskertrace/trapper/pkg/ingest"
	"github.com/whiskertrace/trapper/pkg/kafka"
	"github.com/whiskertrace/trapper/pkg/linker"
	"github.com/whiskertrace/trapper/pkg/matching"
	"github.com/whiskertrace/trapper/pkg/middleware"
	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/places"
	"github.com/whiskertrace/trapper/pkg/resolution"
	blacklistroutes "github.com/whiskertrace/trapper/pkg/routes/blacklist"
	decisionroutes "github.com/whiskertrace/trapper/pkg/routes/decisions"
	deduproutes "github.com/whiskertrace/trapper/pkg/routes/dedup"
	"github.com/whiskertrace/trapper/pkg/routes/health"
	linkroutes "github.com/whiskertrace/trapper/pkg/routes/links"
	networkroutes "github.com/whiskertrace/trapper/pkg/routes/network"
	observationroutes "github.com/whiskertrace/trapper/pkg/routes/observations"
	personroutes "github.com/whiskertrace/trapper/pkg/routes/person"
	pipelineroutes "github.com/whiskertrace/trapper/pkg/routes/pipeline"
	placeroutes "github.com/whiskertrace/trapper/pkg/routes/places"
	resolveroutes "github.com/whiskertrace/trapper/pkg/routes/resolve"
	"github.com/whiskertrace/trapper/pkg/startup"
	"github.com/whiskertrace/trapper/pkg/tracing"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	// A broken relationship remap table must fail the boot, not a request.
	if err := models.ValidateEdgeTables(); err != nil {
		logger.WithError(err).Error("Relationship type tables are inconsistent")
		os.Exit(1)
	}

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracing.SetTracer(otel.Tracer(cfg.AppName))

	ctx := context.Background()

	db, err := connectDatabase(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := runMigrations(cfg, logger, db); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	dbInstance := database.NewDatabaseInstance(db, logger)

	persons := personrepo.NewRepository(dbInstance, logger)
	identifiers := identifierrepo.NewRepository(dbInstance, logger)
	edges := edgerepo.NewRepository(dbInstance, logger)
	placeStore := placerepo.NewRepository(dbInstance, logger)
	animals := animalrepo.NewRepository(dbInstance, logger)
	decisions := decisionrepo.NewRepository(dbInstance, logger)
	blacklist := blacklistrepo.NewRepository(dbInstance, logger)
	visits := visitrepo.NewRepository(dbInstance, logger)
	linkSkips := linkskiprepo.NewRepository(dbInstance, logger)

	var graphClient *graph.Client
	var projector *graph.Projector
	var network *graph.NetworkService
	if cfg.GraphEnabled {
		graphClient, err = graph.NewClient(graph.Config{
			Host:     cfg.GraphDBHost,
			Port:     cfg.GraphDBPort,
			Username: cfg.GraphDBUser,
			Password: cfg.GraphDBPassword,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to graph database")
			os.Exit(1)
		}
		defer graphClient.Close(ctx)
		projector = graph.NewProjector(graphClient, logger)
		network = graph.NewNetworkService(graphClient, logger)
	}

	var producer *kafka.Producer
	var emitter *events.Emitter
	if cfg.KafkaProducerEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaEventsTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
		emitter = events.NewEmitter(producer, logger)
	}

	engine := matching.NewEngine(logger, persons, blacklist, matching.Config{
		EmailWeight:   cfg.MatchEmailWeight,
		PhoneWeight:   cfg.MatchPhoneWeight,
		NameWeight:    cfg.MatchNameWeight,
		AddressWeight: cfg.MatchAddressWeight,
		MaxCandidates: cfg.MatchMaxCandidates,
	})
	resolver := resolution.NewService(
		logger,
		gate.New(cfg.OrgEmailDomains),
		engine,
		blacklist,
		persons,
		animals,
		placeStore,
		identifiers,
		decisions,
	)

	var edgeProjector linker.Projector
	if projector != nil || emitter != nil {
		edgeProjector = &edgeFanout{projector: projector, emitter: emitter, logger: logger}
	}
	linkerSvc := linker.NewService(logger, persons, animals, placeStore, edges, edgeProjector)
	pipeline := linker.NewPipeline(logger, linkerSvc, visits, placeStore, edges, linkSkips)

	placesSvc := places.NewService(logger, placeStore)
	detector := dedup.NewDetector(logger, persons, identifiers, blacklist, decisions, dedup.Config{
		MinIdentifierConfidence: cfg.DedupMinIdentifierConfidence,
		FuzzyNameThreshold:      cfg.DedupFuzzyNameThreshold,
	})

	var personProjector ingest.PersonProjector
	if projector != nil {
		personProjector = projector
	}
	var decisionEmitter ingest.DecisionEmitter
	if emitter != nil {
		decisionEmitter = emitter
	}
	handler := ingest.NewHandler(logger, resolver, visits, persons, animals, decisions, personProjector, decisionEmitter)

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		logger.WithError(err).Error("Failed to create DI container")
		os.Exit(1)
	}
	mustRegister(logger, container, logger)
	mustRegister(logger, container, persons)
	mustRegister(logger, container, identifiers)
	mustRegister(logger, container, edges)
	mustRegister(logger, container, decisions)
	mustRegister(logger, container, blacklist)
	mustRegister(logger, container, linkSkips)
	mustRegister(logger, container, resolver)
	mustRegister(logger, container, linkerSvc)
	mustRegister(logger, container, pipeline)
	mustRegister(logger, container, placesSvc)
	mustRegister(logger, container, detector)
	mustRegister(logger, container, handler)
	if network != nil {
		mustRegister(logger, container, network)
	}
	if projector != nil {
		mustRegister(logger, container, projector)
	}
	if emitter != nil {
		mustRegister(logger, container, emitter)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.HTTPErrorHandler = middleware.Error(logger)

	var graphPinger health.GraphPinger
	if graphClient != nil {
		graphPinger = graphClient
	}
	checker := health.NewChecker(db, graphPinger, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	resolveroutes.Register(api.Group("/resolve"))
	observationroutes.Register(api.Group("/observations"))
	decisionroutes.Register(api.Group("/decisions"))
	personroutes.Register(api.Group("/persons"))
	placeroutes.Register(api.Group("/places"))
	linkroutes.Register(api.Group("/links"))
	pipelineroutes.Register(api.Group("/pipeline"))
	api.GET("/link-skips", pipelineroutes.ListSkips)
	deduproutes.Register(api.Group("/dedup"))
	blacklistroutes.Register(api.Group("/blacklist"))
	if network != nil {
		networkroutes.Register(api.Group("/network"))
	}

	boot := startup.NewStartup[any](logger, cfg.StartupMaxAttempts)

	if cfg.KafkaConsumerEnabled {
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaObservationsTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		}, logger, handler.HandleMessage)
		boot.AddDependency(&dependency{
			name:  "kafka-consumer",
			start: consumer.Start,
			stop:  func(context.Context) error { return consumer.Stop() },
		})
	}

	boot.AddDependency(&dependency{
		name: "http-server",
		start: func(context.Context) error {
			go func() {
				addr := fmt.Sprintf(":%d", cfg.Port)
				if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("HTTP server stopped")
					os.Exit(1)
				}
			}()
			return nil
		},
		stop: func(ctx context.Context) error { return e.Shutdown(ctx) },
	})

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}
	checker.SetReady(true)
	logger.WithFields(map[string]any{
		"app":     cfg.AppName,
		"port":    cfg.Port,
		"version": version,
	}).Info("Service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	checker.SetReady(false)
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
	_ = tp.Shutdown(shutdownCtx)
}

func connectDatabase(cfg config.Config) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
		cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)

	var db *sqlx.DB
	var err error
	for attempt := 0; attempt <= cfg.DatabaseReconnectRetryCount; attempt++ {
		db, err = sqlx.Connect(cfg.DatabaseDriver, dsn)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	return db, nil
}

func runMigrations(cfg config.Config, logger ectologger.Logger, db *sqlx.DB) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	ms := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return ms.Migrate(cfg.DatabaseName, driver)
}

func newLogger(cfg config.Config) (ectologger.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zc = zap.NewDevelopmentConfig()
	}
	if lvl, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	zl, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		fields := make([]zap.Field, 0, len(msg.Fields)+1)
		for k, v := range msg.Fields {
			fields = append(fields, zap.Any(k, v))
		}
		if msg.Err != nil {
			fields = append(fields, zap.Error(msg.Err))
		}

		switch strings.ToLower(fmt.Sprintf("%v", msg.Level)) {
		case "debug":
			zl.Debug(msg.Message, fields...)
		case "warn", "warning":
			zl.Warn(msg.Message, fields...)
		case "error":
			zl.Error(msg.Message, fields...)
		case "fatal":
			zl.Fatal(msg.Message, fields...)
		default:
			zl.Info(msg.Message, fields...)
		}
	}), nil
}

func mustRegister[T any](logger ectologger.Logger, container ectocontainer.DIContainer, instance T) {
	if err := ectoinject.RegisterInstance[T](container, instance); err != nil {
		logger.WithError(err).Error("Failed to register dependency")
		os.Exit(1)
	}
}

// edgeFanout mirrors upserted edges to the graph and publishes an event.
// Both sides are best effort; edge writes in Postgres never depend on them.
type edgeFanout struct {
	projector *graph.Projector
	emitter   *events.Emitter
	logger    ectologger.Logger
}

func (f *edgeFanout) ProjectEdge(ctx context.Context, kind models.EdgeKind, edge *models.Edge) error {
	if f.emitter != nil {
		if err := f.emitter.EmitEdgeUpserted(ctx, kind, edge); err != nil {
			f.logger.WithContext(ctx).WithError(err).Warn("Failed to emit edge event")
		}
	}
	if f.projector != nil {
		return f.projector.ProjectEdge(ctx, kind, edge)
	}
	return nil
}

// dependency adapts a start/stop pair to the startup orchestrator.
type dependency struct {
	name  string
	deps  []string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func (d *dependency) GetName() string                 { return d.name }
func (d *dependency) DependsOn() []string             { return d.deps }
func (d *dependency) Start(ctx context.Context) error { return d.start(ctx) }
func (d *dependency) Stop(ctx context.Context) error  { return d.stop(ctx) }
