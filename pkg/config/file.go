package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors the TOML layout. Empty values leave the current
// setting untouched.
type fileConfig struct {
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`

	Mongo struct {
		URI         string `toml:"uri"`
		Database    string `toml:"database"`
		Collection  string `toml:"collection"`
		ConnTimeout string `toml:"conn_timeout"`
	} `toml:"mongo"`

	Server struct {
		Port            string  `toml:"port"`
		ReadTimeout     string  `toml:"read_timeout"`
		WriteTimeout    string  `toml:"write_timeout"`
		IdleTimeout     string  `toml:"idle_timeout"`
		ShutdownTimeout string  `toml:"shutdown_timeout"`
		RequestTimeout  string  `toml:"request_timeout"`
		MaxRequestSize  int     `toml:"max_request_size"`
		RateLimitRPS    float64 `toml:"rate_limit_rps"`
		RateLimitBurst  int     `toml:"rate_limit_burst"`
	} `toml:"server"`

	Auction struct {
		Timezone      string `toml:"timezone"`
		DeadlineHour  *int   `toml:"deadline_hour"`
		PauseDuration string `toml:"pause_duration"`
		RoundDuration string `toml:"round_duration"`
		MisfireGrace  string `toml:"misfire_grace"`
		DBRetries     int    `toml:"db_retries"`
		DBRetryDelay  string `toml:"db_retry_delay"`
		Discipline    string `toml:"discipline"`
		Debug         bool   `toml:"debug"`
		WorkerURL     string `toml:"worker_url"`
	} `toml:"auction"`

	DataSource struct {
		Type         string `toml:"type"`
		Path         string `toml:"path"`
		APIServer    string `toml:"resource_api_server"`
		APIVersion   string `toml:"resource_api_version"`
		ResourceName string `toml:"resource_name"`
		APIToken     string `toml:"resource_api_token"`
	} `toml:"datasource"`

	DocumentService struct {
		Enabled bool   `toml:"enabled"`
		URL     string `toml:"url"`
		Region  string `toml:"region"`
		Bucket  string `toml:"bucket"`
		Key     string `toml:"key"`
		Secret  string `toml:"secret"`
	} `toml:"document_service"`

	Redis struct {
		Addr       string `toml:"addr"`
		Password   string `toml:"password"`
		DB         int    `toml:"db"`
		MappingTTL string `toml:"mapping_ttl"`
	} `toml:"redis"`

	Events struct {
		Enabled     bool   `toml:"enabled"`
		Topic       string `toml:"topic"`
		BidsTopic   string `toml:"bids_topic"`
		BidsGroupID string `toml:"bids_group_id"`
	} `toml:"events"`
}

// ApplyFile overlays the TOML file at path. An empty path is a no-op.
func (cfg *Config) ApplyFile(path string) error {
	if path == "" {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var fc fileConfig
	if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&fc); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg.apply(&fc)
}

func (cfg *Config) apply(fc *fileConfig) error {
	setStr(&cfg.LogLevel, fc.Log.Level)
	setStr(&cfg.LogFormat, fc.Log.Format)

	setStr(&cfg.MongoURI, fc.Mongo.URI)
	setStr(&cfg.MongoDatabaseName, fc.Mongo.Database)
	setStr(&cfg.MongoCollection, fc.Mongo.Collection)

	setStr(&cfg.Port, fc.Server.Port)
	setInt(&cfg.MaxRequestSize, fc.Server.MaxRequestSize)
	setInt(&cfg.RateLimitBurst, fc.Server.RateLimitBurst)
	if fc.Server.RateLimitRPS != 0 {
		cfg.RateLimitRPS = fc.Server.RateLimitRPS
	}

	setStr(&cfg.Timezone, fc.Auction.Timezone)
	if fc.Auction.DeadlineHour != nil {
		cfg.DeadlineHour = *fc.Auction.DeadlineHour
	}
	setInt(&cfg.DBRetries, fc.Auction.DBRetries)
	setStr(&cfg.Discipline, fc.Auction.Discipline)
	cfg.Debug = cfg.Debug || fc.Auction.Debug
	setStr(&cfg.WorkerURL, fc.Auction.WorkerURL)

	setStr(&cfg.DataSourceType, fc.DataSource.Type)
	setStr(&cfg.DataSourcePath, fc.DataSource.Path)
	setStr(&cfg.APIServer, fc.DataSource.APIServer)
	setStr(&cfg.APIVersion, fc.DataSource.APIVersion)
	setStr(&cfg.ResourceName, fc.DataSource.ResourceName)
	setStr(&cfg.APIToken, fc.DataSource.APIToken)

	cfg.WithDocumentService = cfg.WithDocumentService || fc.DocumentService.Enabled
	setStr(&cfg.DocServiceURL, fc.DocumentService.URL)
	setStr(&cfg.DocServiceRegion, fc.DocumentService.Region)
	setStr(&cfg.DocServiceBucket, fc.DocumentService.Bucket)
	setStr(&cfg.DocServiceKey, fc.DocumentService.Key)
	setStr(&cfg.DocServiceSecret, fc.DocumentService.Secret)

	setStr(&cfg.RedisAddr, fc.Redis.Addr)
	setStr(&cfg.RedisPassword, fc.Redis.Password)
	setInt(&cfg.RedisDB, fc.Redis.DB)

	cfg.EventsEnabled = cfg.EventsEnabled || fc.Events.Enabled
	setStr(&cfg.EventsTopic, fc.Events.Topic)
	setStr(&cfg.BidsTopic, fc.Events.BidsTopic)
	setStr(&cfg.BidsGroupID, fc.Events.BidsGroupID)

	for _, d := range []struct {
		key    string
		raw    string
		target *time.Duration
	}{
		{"mongo.conn_timeout", fc.Mongo.ConnTimeout, &cfg.MongoConnTimeout},
		{"server.read_timeout", fc.Server.ReadTimeout, &cfg.ReadTimeout},
		{"server.write_timeout", fc.Server.WriteTimeout, &cfg.WriteTimeout},
		{"server.idle_timeout", fc.Server.IdleTimeout, &cfg.IdleTimeout},
		{"server.shutdown_timeout", fc.Server.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"server.request_timeout", fc.Server.RequestTimeout, &cfg.RequestTimeout},
		{"auction.pause_duration", fc.Auction.PauseDuration, &cfg.PauseDuration},
		{"auction.round_duration", fc.Auction.RoundDuration, &cfg.RoundDuration},
		{"auction.misfire_grace", fc.Auction.MisfireGrace, &cfg.MisfireGrace},
		{"auction.db_retry_delay", fc.Auction.DBRetryDelay, &cfg.DBRetryDelay},
		{"redis.mapping_ttl", fc.Redis.MappingTTL, &cfg.MappingTTL},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", d.key, err)
		}
		*d.target = parsed
	}

	return nil
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
