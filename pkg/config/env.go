package config

const (
	EnvConfigFile = "AUCTION_CONFIG"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoCollection   = "MONGO_COLLECTION"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort      = "PORT"
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"

	EnvRateLimitRPS   = "RATE_LIMIT_RPS"
	EnvRateLimitBurst = "RATE_LIMIT_BURST"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvTimezone      = "AUCTION_TIMEZONE"
	EnvDeadlineHour  = "AUCTION_DEADLINE_HOUR"
	EnvPauseDuration = "AUCTION_PAUSE_DURATION"
	EnvRoundDuration = "AUCTION_ROUND_DURATION"
	EnvMisfireGrace  = "AUCTION_MISFIRE_GRACE"
	EnvDBRetries     = "AUCTION_DB_RETRIES"
	EnvDBRetryDelay  = "AUCTION_DB_RETRY_DELAY"
	EnvDiscipline    = "AUCTION_DISCIPLINE"
	EnvDebug         = "AUCTION_DEBUG"
	EnvWorkerURL     = "AUCTION_WORKER_URL"

	EnvDataSourceType = "DATASOURCE_TYPE"
	EnvDataSourcePath = "DATASOURCE_PATH"
	EnvAPIServer      = "RESOURCE_API_SERVER"
	EnvAPIVersion     = "RESOURCE_API_VERSION"
	EnvResourceName   = "RESOURCE_NAME"
	EnvAPIToken       = "RESOURCE_API_TOKEN"

	EnvDocumentService  = "DOCUMENT_SERVICE_ENABLED"
	EnvDocServiceURL    = "DOCUMENT_SERVICE_URL"
	EnvDocServiceRegion = "DOCUMENT_SERVICE_REGION"
	EnvDocServiceBucket = "DOCUMENT_SERVICE_BUCKET"
	EnvDocServiceKey    = "DOCUMENT_SERVICE_KEY"
	EnvDocServiceSecret = "DOCUMENT_SERVICE_SECRET"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"
	EnvMappingTTL    = "REDIS_MAPPING_TTL"

	EnvEventsEnabled = "EVENTS_ENABLED"
	EnvEventsTopic   = "EVENTS_TOPIC"
	EnvBidsTopic     = "BIDS_TOPIC"
	EnvBidsGroupID   = "BIDS_GROUP_ID"
)
