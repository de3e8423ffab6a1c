package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "auctions"
	DefaultMongoCollection   = "auctions"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort = "8080"

	DefaultRateLimitRPS   = 5.0
	DefaultRateLimitBurst = 10

	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRequestSize = 64 * 1024 // 64KB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultTimezone      = "Europe/Kyiv"
	DefaultDeadlineHour  = 17
	DefaultPauseDuration = 10 * time.Second
	DefaultRoundDuration = 180 * time.Second
	DefaultMisfireGrace  = 100 * time.Second
	DefaultDBRetries     = 10
	DefaultDBRetryDelay  = 1 * time.Second
	DefaultDiscipline    = DisciplineAscending

	DefaultDataSourceType = DataSourceAPI
	DefaultAPIVersion     = "2.5"
	DefaultResourceName   = "tenders"

	DefaultRedisAddr  = "localhost:6379"
	DefaultMappingTTL = 24 * time.Hour

	DefaultEventsTopic = "auction-events"
	DefaultBidsTopic   = "auction-bids"
	DefaultBidsGroupID = "auction-worker"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

const (
	DisciplineAscending = "ascending"
	DisciplineLedger    = "ledger"

	DataSourceFile = "file"
	DataSourceAPI  = "api"
)
