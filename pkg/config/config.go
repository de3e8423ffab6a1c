package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"auctionworker/pkg/client"
	"auctionworker/pkg/logger"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoCollection   string
	MongoConnTimeout  time.Duration

	Port string

	RateLimitRPS   float64
	RateLimitBurst int

	RequestTimeout time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Timezone      string
	Location      *time.Location
	DeadlineHour  int
	PauseDuration time.Duration
	RoundDuration time.Duration
	MisfireGrace  time.Duration
	DBRetries     int
	DBRetryDelay  time.Duration
	Discipline    string
	Debug         bool
	WorkerURL     string

	DataSourceType string
	DataSourcePath string
	APIServer      string
	APIVersion     string
	ResourceName   string
	APIToken       string

	WithDocumentService bool
	DocServiceURL       string
	DocServiceRegion    string
	DocServiceBucket    string
	DocServiceKey       string
	DocServiceSecret    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MappingTTL    time.Duration

	EventsEnabled bool
	EventsTopic   string
	BidsTopic     string
	BidsGroupID   string

	LogLevel  string
	LogFormat string

	Log    *logger.Logger
	Client *client.Client
}

// Load builds the configuration from defaults, then the TOML file at path
// (skipped when path is empty), then environment overrides. Invalid
// configuration is fatal.
func Load(serviceName, path string) *Config {
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}

	cfg := Default()
	fileErr := cfg.ApplyFile(path)
	cfg.ApplyEnv()

	cfg.Log = logger.New(logger.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		AddSource: true,
		Service:   serviceName,
	})
	if fileErr != nil {
		cfg.Log.Fatal("Failed to read configuration file", "path", path, "error", fileErr)
	}
	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}

	cfg.Client = client.NewClient()
	cfg.LogConfiguration()
	return cfg
}

func Default() *Config {
	return &Config{
		MongoURI:          DefaultMongoURI,
		MongoDatabaseName: DefaultMongoDatabaseName,
		MongoCollection:   DefaultMongoCollection,
		MongoConnTimeout:  DefaultMongoConnTimeout,

		Port: DefaultPort,

		RateLimitRPS:   DefaultRateLimitRPS,
		RateLimitBurst: DefaultRateLimitBurst,

		RequestTimeout: DefaultRequestTimeout,
		MaxRequestSize: DefaultMaxRequestSize,

		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,

		Timezone:      DefaultTimezone,
		DeadlineHour:  DefaultDeadlineHour,
		PauseDuration: DefaultPauseDuration,
		RoundDuration: DefaultRoundDuration,
		MisfireGrace:  DefaultMisfireGrace,
		DBRetries:     DefaultDBRetries,
		DBRetryDelay:  DefaultDBRetryDelay,
		Discipline:    DefaultDiscipline,

		DataSourceType: DefaultDataSourceType,
		APIVersion:     DefaultAPIVersion,
		ResourceName:   DefaultResourceName,

		RedisAddr:  DefaultRedisAddr,
		MappingTTL: DefaultMappingTTL,

		EventsTopic: DefaultEventsTopic,
		BidsTopic:   DefaultBidsTopic,
		BidsGroupID: DefaultBidsGroupID,

		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
	}
}

// ApplyEnv overrides every field whose environment variable is set.
func (cfg *Config) ApplyEnv() {
	cfg.MongoURI = getEnvStr(EnvMongoURI, cfg.MongoURI)
	cfg.MongoDatabaseName = getEnvStr(EnvMongoDatabaseName, cfg.MongoDatabaseName)
	cfg.MongoCollection = getEnvStr(EnvMongoCollection, cfg.MongoCollection)
	cfg.MongoConnTimeout = getEnvDuration(EnvMongoConnTimeout, cfg.MongoConnTimeout)

	cfg.Port = getEnvStr(EnvPort, cfg.Port)

	cfg.RateLimitRPS = getEnvFloat(EnvRateLimitRPS, cfg.RateLimitRPS)
	cfg.RateLimitBurst = getEnvNum(EnvRateLimitBurst, cfg.RateLimitBurst)

	cfg.RequestTimeout = getEnvDuration(EnvRequestTimeout, cfg.RequestTimeout)
	cfg.MaxRequestSize = getEnvNum(EnvMaxRequestSize, cfg.MaxRequestSize)

	cfg.ReadTimeout = getEnvDuration(EnvReadTimeout, cfg.ReadTimeout)
	cfg.WriteTimeout = getEnvDuration(EnvWriteTimeout, cfg.WriteTimeout)
	cfg.IdleTimeout = getEnvDuration(EnvIdleTimeout, cfg.IdleTimeout)
	cfg.ShutdownTimeout = getEnvDuration(EnvShutdownTimeout, cfg.ShutdownTimeout)

	cfg.Timezone = getEnvStr(EnvTimezone, cfg.Timezone)
	cfg.DeadlineHour = getEnvNum(EnvDeadlineHour, cfg.DeadlineHour)
	cfg.PauseDuration = getEnvDuration(EnvPauseDuration, cfg.PauseDuration)
	cfg.RoundDuration = getEnvDuration(EnvRoundDuration, cfg.RoundDuration)
	cfg.MisfireGrace = getEnvDuration(EnvMisfireGrace, cfg.MisfireGrace)
	cfg.DBRetries = getEnvNum(EnvDBRetries, cfg.DBRetries)
	cfg.DBRetryDelay = getEnvDuration(EnvDBRetryDelay, cfg.DBRetryDelay)
	cfg.Discipline = getEnvStr(EnvDiscipline, cfg.Discipline)
	cfg.Debug = getEnvBool(EnvDebug, cfg.Debug)
	cfg.WorkerURL = getEnvStr(EnvWorkerURL, cfg.WorkerURL)

	cfg.DataSourceType = getEnvStr(EnvDataSourceType, cfg.DataSourceType)
	cfg.DataSourcePath = getEnvStr(EnvDataSourcePath, cfg.DataSourcePath)
	cfg.APIServer = getEnvStr(EnvAPIServer, cfg.APIServer)
	cfg.APIVersion = getEnvStr(EnvAPIVersion, cfg.APIVersion)
	cfg.ResourceName = getEnvStr(EnvResourceName, cfg.ResourceName)
	cfg.APIToken = getEnvStr(EnvAPIToken, cfg.APIToken)

	cfg.WithDocumentService = getEnvBool(EnvDocumentService, cfg.WithDocumentService)
	cfg.DocServiceURL = getEnvStr(EnvDocServiceURL, cfg.DocServiceURL)
	cfg.DocServiceRegion = getEnvStr(EnvDocServiceRegion, cfg.DocServiceRegion)
	cfg.DocServiceBucket = getEnvStr(EnvDocServiceBucket, cfg.DocServiceBucket)
	cfg.DocServiceKey = getEnvStr(EnvDocServiceKey, cfg.DocServiceKey)
	cfg.DocServiceSecret = getEnvStr(EnvDocServiceSecret, cfg.DocServiceSecret)

	cfg.RedisAddr = getEnvStr(EnvRedisAddr, cfg.RedisAddr)
	cfg.RedisPassword = getEnvStr(EnvRedisPassword, cfg.RedisPassword)
	cfg.RedisDB = getEnvNum(EnvRedisDB, cfg.RedisDB)
	cfg.MappingTTL = getEnvDuration(EnvMappingTTL, cfg.MappingTTL)

	cfg.EventsEnabled = getEnvBool(EnvEventsEnabled, cfg.EventsEnabled)
	cfg.EventsTopic = getEnvStr(EnvEventsTopic, cfg.EventsTopic)
	cfg.BidsTopic = getEnvStr(EnvBidsTopic, cfg.BidsTopic)
	cfg.BidsGroupID = getEnvStr(EnvBidsGroupID, cfg.BidsGroupID)

	cfg.LogLevel = getEnvStr(EnvLogLevel, cfg.LogLevel)
	cfg.LogFormat = getEnvStr(EnvLogFormat, cfg.LogFormat)
}

// Validate checks every setting and resolves the auction timezone.
func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", cfg.MongoURI))
	}
	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}
	if cfg.MongoCollection == "" {
		errors = append(errors, "MongoCollection cannot be empty")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		errors = append(errors, fmt.Sprintf("Timezone is not a known location, got: %s", cfg.Timezone))
	} else {
		cfg.Location = loc
	}
	if cfg.DeadlineHour < 0 || cfg.DeadlineHour > 23 {
		errors = append(errors, fmt.Sprintf("DeadlineHour must be between 0 and 23, got: %d", cfg.DeadlineHour))
	}
	if cfg.DBRetries <= 0 {
		errors = append(errors, fmt.Sprintf("DBRetries must be positive, got: %d", cfg.DBRetries))
	}
	if cfg.DBRetryDelay < 0 {
		errors = append(errors, fmt.Sprintf("DBRetryDelay cannot be negative, got: %s", cfg.DBRetryDelay))
	}
	if cfg.Discipline != DisciplineAscending && cfg.Discipline != DisciplineLedger {
		errors = append(errors, fmt.Sprintf("Discipline must be one of [%s, %s], got: %s", DisciplineAscending, DisciplineLedger, cfg.Discipline))
	}

	switch cfg.DataSourceType {
	case DataSourceFile:
		if cfg.DataSourcePath == "" {
			errors = append(errors, "DataSourcePath is required for the file datasource")
		}
	case DataSourceAPI:
		if cfg.APIServer == "" {
			errors = append(errors, "APIServer is required for the api datasource")
		}
	default:
		errors = append(errors, fmt.Sprintf("DataSourceType must be one of [%s, %s], got: %s", DataSourceFile, DataSourceAPI, cfg.DataSourceType))
	}
	if cfg.WithDocumentService && cfg.DocServiceBucket == "" {
		errors = append(errors, "DocServiceBucket is required when the document service is enabled")
	}

	if cfg.RedisAddr == "" {
		errors = append(errors, "RedisAddr cannot be empty")
	}
	if cfg.EventsEnabled && (cfg.EventsTopic == "" || cfg.BidsTopic == "") {
		errors = append(errors, "EventsTopic and BidsTopic are required when events are enabled")
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"MongoConnTimeout", cfg.MongoConnTimeout},
		{"RequestTimeout", cfg.RequestTimeout},
		{"ReadTimeout", cfg.ReadTimeout},
		{"WriteTimeout", cfg.WriteTimeout},
		{"IdleTimeout", cfg.IdleTimeout},
		{"ShutdownTimeout", cfg.ShutdownTimeout},
		{"PauseDuration", cfg.PauseDuration},
		{"RoundDuration", cfg.RoundDuration},
		{"MisfireGrace", cfg.MisfireGrace},
		{"MappingTTL", cfg.MappingTTL},
	} {
		if d.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", d.name, d.value))
		}
	}

	if cfg.RateLimitRPS <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRPS must be positive, got: %g", cfg.RateLimitRPS))
	}
	if cfg.RateLimitBurst <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitBurst must be positive, got: %d", cfg.RateLimitBurst))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_collection", cfg.MongoCollection,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"rate_limit_rps", cfg.RateLimitRPS,
		"rate_limit_burst", cfg.RateLimitBurst,
		"request_timeout", cfg.RequestTimeout,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"timezone", cfg.Timezone,
		"deadline_hour", cfg.DeadlineHour,
		"pause_duration", cfg.PauseDuration,
		"round_duration", cfg.RoundDuration,
		"misfire_grace", cfg.MisfireGrace,
		"db_retries", cfg.DBRetries,
		"discipline", cfg.Discipline,
		"debug", cfg.Debug,
		"worker_url", cfg.WorkerURL,
		"datasource", cfg.DataSourceType,
		"api_server", cfg.APIServer,
		"api_token_set", cfg.APIToken != "",
		"document_service", cfg.WithDocumentService,
		"redis_addr", cfg.RedisAddr,
		"events_enabled", cfg.EventsEnabled,
	)
}

// TenderPath is the tender resource path relative to the API server.
func (cfg *Config) TenderPath(tenderID string) string {
	return fmt.Sprintf("/api/%s/%s/%s", cfg.APIVersion, cfg.ResourceName, tenderID)
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}
