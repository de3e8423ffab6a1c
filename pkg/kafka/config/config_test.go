package kafka_config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Brokers) != 1 || cfg.Brokers[0] != DefaultKafkaBrokers {
		t.Errorf("Brokers = %v, want [%s]", cfg.Brokers, DefaultKafkaBrokers)
	}
	if cfg.ConsumerStartOffset != DefaultConsumerStartOffset {
		t.Errorf("ConsumerStartOffset = %d, want %d", cfg.ConsumerStartOffset, DefaultConsumerStartOffset)
	}
	if got := cfg.DLQTopic("auction-bids"); got != "auction-bids.dlq" {
		t.Errorf("DLQTopic() = %q", got)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv(EnvKafkaBrokers, "k1:9092, k2:9092")
	t.Setenv(EnvKafkaDLQSuffix, "-dead")
	t.Setenv(EnvKafkaConsumerMaxWait, "2s")
	t.Setenv(EnvKafkaEnableMiddleware, "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "k2:9092" {
		t.Errorf("Brokers = %v", cfg.Brokers)
	}
	if cfg.ConsumerMaxWait != 2*time.Second {
		t.Errorf("ConsumerMaxWait = %s", cfg.ConsumerMaxWait)
	}
	if cfg.EnableMiddleware {
		t.Error("EnableMiddleware should be false")
	}
	if got := cfg.DLQTopic("bids"); got != "bids-dead" {
		t.Errorf("DLQTopic() = %q", got)
	}
}

func TestDLQTopic_Disabled(t *testing.T) {
	cfg := &Config{}
	if got := cfg.DLQTopic("bids"); got != "" {
		t.Errorf("DLQTopic() = %q, want empty", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no brokers", func(c *Config) { c.Brokers = nil }, "At least one Kafka broker"},
		{"empty broker", func(c *Config) { c.Brokers = []string{"k1", ""} }, "Broker 1 cannot be empty"},
		{"compression", func(c *Config) { c.ProducerCompression = "brotli" }, "ProducerCompression"},
		{"acks", func(c *Config) { c.ProducerRequireAcks = 2 }, "ProducerRequireAcks"},
		{"offset", func(c *Config) { c.ConsumerStartOffset = 5 }, "ConsumerStartOffset"},
		{"bytes", func(c *Config) { c.ConsumerMaxBytes = 0 }, "ConsumerMaxBytes"},
		{"session", func(c *Config) { c.ConsumerSessionTimeout = 0 }, "ConsumerSessionTimeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
