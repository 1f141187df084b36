package config

import "time"

// KafkaConfig is the subset of kafka.Config a deployment typically wants
// to externalize.
type KafkaConfig struct {
	Brokers       []string
	Version       string
	ClientID      string
	ConsumerGroup string
	ReplyTopics   []string
}

// Kafka extracts a KafkaConfig from the "kafka" sub-object, applying
// defaultGroup and defaultVersion where the file is silent.
func (c Config) Kafka(defaultGroup, defaultVersion string) KafkaConfig {
	sub := c.Sub("kafka")
	return KafkaConfig{
		Brokers:       sub.StringSlice("brokers", []string{"localhost:9092"}),
		Version:       sub.String("version", defaultVersion),
		ClientID:      sub.String("client_id", "sagaorch"),
		ConsumerGroup: sub.String("consumer_group", defaultGroup),
		ReplyTopics:   sub.StringSlice("reply_topics", nil),
	}
}

// SQLiteConfig is the subset of state.SQLiteRepository settings a
// deployment typically wants to externalize.
type SQLiteConfig struct {
	Path string
}

// SQLite extracts a SQLiteConfig from the "sqlite" sub-object.
func (c Config) SQLite(defaultPath string) SQLiteConfig {
	sub := c.Sub("sqlite")
	return SQLiteConfig{Path: sub.String("path", defaultPath)}
}

// ShutdownTimeout returns the deployment's preferred grace period for
// draining in-flight broker handlers during shutdown.
func (c Config) ShutdownTimeout(defaultVal time.Duration) time.Duration {
	return c.Duration("shutdown_timeout", defaultVal)
}
