package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"auctionworker/internal/auction/datasource"
	"auctionworker/internal/auction/events"
	"auctionworker/internal/auction/handler"
	"auctionworker/internal/auction/mapping"
	"auctionworker/internal/auction/repository"
	"auctionworker/internal/auction/service"
	"auctionworker/internal/auction/state"
	"auctionworker/pkg/app"
	"auctionworker/pkg/config"
	"auctionworker/pkg/kafka"
	kafka_config "auctionworker/pkg/kafka/config"
	kafka_middleware "auctionworker/pkg/kafka/middleware"
	"auctionworker/pkg/logger"
	"auctionworker/pkg/metrics"
)

const ServiceName = "auction-worker"

var commands = map[string]func(*service.Auction, context.Context) error{
	"planning":      (*service.Auction).PrepareAuctionDocument,
	"announce":      (*service.Auction).PostAnnounce,
	"cancel":        (*service.Auction).CancelAuction,
	"reschedule":    (*service.Auction).RescheduleAuction,
	"prepare_audit": (*service.Auction).PostAudit,
}

func main() {
	configPath := flag.String("config", "", "path to a TOML configuration file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 2 {
		usage()
		os.Exit(2)
	}
	command, auctionID := flag.Arg(0), flag.Arg(1)
	if _, ok := commands[command]; !ok && command != "run" {
		usage()
		os.Exit(2)
	}

	cfg := config.Load(ServiceName, *configPath)
	log := cfg.Log.ForAuction(auctionID)
	log.Info("Starting auction worker", "command", command)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	m := metrics.New(prometheus.NewRegistry())
	repo := repository.NewAuctionRepository(
		repository.NewMongoDocumentStore(cfg),
		cfg.DBRetries,
		cfg.DBRetryDelay,
		cfg.Log,
		m,
	)
	source := initDataSource(ctx, cfg, auctionID)

	var err error
	if command == "run" {
		err = run(ctx, stop, cfg, auctionID, repo, source, m)
	} else {
		auction := service.NewAuction(ctx, service.Options{
			AuctionID: auctionID,
			Config:    cfg,
			Registry:  state.New(),
			Repo:      repo,
			Source:    source,
			Log:       cfg.Log,
			Metrics:   m,
		})
		err = commands[command](auction, ctx)
		auction.Shutdown()
	}

	if err != nil {
		log.Error("Auction worker command failed", "command", command, "error", err)
		cfg.GracefulShutdown()
		os.Exit(1)
	}
	log.Info("Auction worker finished", "command", command)
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(),
		"Usage: %s [-config path] <run|planning|announce|cancel|reschedule|prepare_audit> <auction_id>\n",
		os.Args[0])
	flag.PrintDefaults()
}

func initDataSource(ctx context.Context, cfg *config.Config, auctionID string) datasource.DataSource {
	source, err := datasource.New(ctx, cfg, auctionID, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize data source", "type", cfg.DataSourceType, "error", err)
	}
	return source
}

// run schedules the auction and serves bids until the auction ends or a
// signal arrives.
func run(
	ctx context.Context,
	stop context.CancelFunc,
	cfg *config.Config,
	auctionID string,
	repo repository.AuctionRepository,
	source datasource.DataSource,
	m *metrics.Metrics,
) error {
	cfg.SetRedis()
	var mapper mapping.Mapper = mapping.Noop{}
	if cfg.Client.Redis != nil {
		mapper = mapping.New(cfg.Client.Redis, cfg.MappingTTL, cfg.Log)
	}

	publisher := initPublisher(cfg, m)
	defer publisher.Close()

	reg := state.New()
	auction := service.NewAuction(ctx, service.Options{
		AuctionID: auctionID,
		Config:    cfg,
		Registry:  reg,
		Repo:      repo,
		Source:    source,
		Mapper:    mapper,
		Events:    events.NewKafkaPublisher(publisher, cfg.Log),
		Log:       cfg.Log,
		Metrics:   m,
	})
	defer auction.Shutdown()

	if err := auction.ScheduleAuction(ctx); err != nil {
		return fmt.Errorf("failed to schedule auction: %w", err)
	}

	application := app.NewApplication(cfg, m,
		handler.NewHealthHandler(repo, cfg.Log),
		handler.NewAuctionHandler(auction, cfg.Log),
	)
	reg.SetServer(application)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return application.Run(gctx)
	})
	if consumer := initBidConsumer(cfg, auction, m); consumer != nil {
		defer consumer.Close()
		g.Go(func() error {
			return consumer.Start(gctx)
		})
	}
	g.Go(func() error {
		defer stop()
		return auction.WaitToEnd(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func initPublisher(cfg *config.Config, m *metrics.Metrics) kafka.Publisher {
	if !cfg.EventsEnabled {
		return kafka.NoopPublisher{}
	}

	kcfg := loadKafkaConfig(cfg.Log)
	producer, err := kafka.NewProducer(kcfg, cfg.EventsTopic, "", cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "topic", cfg.EventsTopic, "error", err)
	}
	if kcfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
		producer.Use(kafka_middleware.MetricsProducerMiddleware(m))
	}
	cfg.Log.Info("Publishing auction events", "topic", cfg.EventsTopic, "brokers", kcfg.Brokers)
	return producer
}

// initBidConsumer returns nil when events are disabled.
func initBidConsumer(cfg *config.Config, auction *service.Auction, m *metrics.Metrics) *kafka.Consumer {
	if !cfg.EventsEnabled || cfg.BidsTopic == "" {
		return nil
	}

	kcfg := loadKafkaConfig(cfg.Log)
	consumer, err := kafka.NewConsumer(
		kcfg,
		cfg.BidsTopic,
		cfg.BidsGroupID+"-"+auction.ID(),
		kcfg.DLQTopic(cfg.BidsTopic),
		events.NewBidIntakeHandler(auction, auction.ID(), cfg.Log),
		cfg.Log,
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "topic", cfg.BidsTopic, "error", err)
	}
	if kcfg.EnableMiddleware {
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
		consumer.Use(kafka_middleware.MetricsConsumerMiddleware(m))
	}
	cfg.Log.Info("Consuming bids", "topic", cfg.BidsTopic)
	return consumer
}

func loadKafkaConfig(log *logger.Logger) *kafka_config.Config {
	kcfg, err := kafka_config.Load()
	if err != nil {
		log.Fatal("Invalid Kafka configuration", "error", err)
	}
	return kcfg
}
