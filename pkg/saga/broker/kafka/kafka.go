// Package kafka is a broker.Broker adapter backed by Kafka, using
// Sarama for both the outbound sync producer and the inbound consumer
// group. Every task — outbound step dispatch or inbound reply — is
// carried as a JSON envelope naming the saga id, the task name, and the
// task's payload; BindHandler registers handlers by task name and the
// consumer goroutine fans delivered messages out to them by decoding
// that envelope.
package kafka

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/kdean-oss/sagaorch/pkg/saga/broker"
)

// Config holds the connection and topic settings for the Kafka broker.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string

	// Version is the Kafka protocol version string, e.g. "3.6.0".
	Version string

	// ClientID identifies this client to the broker.
	ClientID string

	// ReplyTopics are the topics the broker consumes inbound replies
	// from. Every reply topic is expected to carry envelopes whose
	// TaskName matches a name registered via BindHandler.
	ReplyTopics []string

	// ConsumerGroup is the Kafka consumer group id used when consuming
	// ReplyTopics.
	ConsumerGroup string

	// TLS, if non-nil and Enable, wraps the connection in TLS.
	TLS *TLSConfig

	// Logger receives adapter-level structured logs. Defaults to
	// slog.Default() when nil.
	Logger *slog.Logger
}

// TLSConfig configures transport encryption.
type TLSConfig struct {
	Enable             bool
	InsecureSkipVerify bool
}

// envelope is the wire format for both outbound tasks and inbound
// replies: the orchestrator's own correlation token plus the task name
// derived reply routing depends on.
type envelope struct {
	SagaID   int64          `json:"saga_id"`
	TaskName string         `json:"task_name"`
	Payload  map[string]any `json:"payload"`
}

// Broker is a broker.Broker backed by Kafka.
type Broker struct {
	cfg    Config
	logger *slog.Logger

	client   sarama.Client
	producer sarama.SyncProducer

	mu       sync.RWMutex
	handlers map[string]broker.ReplyHandler

	consumerGroup sarama.ConsumerGroup
	cancel        context.CancelFunc
	wg            sync.WaitGroup

	closeOnce sync.Once
}

// New connects to the configured brokers, opens a sync producer, and (if
// ReplyTopics is non-empty) starts a consumer group goroutine that
// dispatches inbound envelopes to handlers bound via BindHandler.
func New(ctx context.Context, cfg Config) (*Broker, error) {
	saramaCfg, err := buildSaramaConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka broker: build config: %w", err)
	}

	brokers := cfg.Brokers
	if len(brokers) == 1 && strings.Contains(brokers[0], ",") {
		brokers = strings.Split(brokers[0], ",")
	}

	client, err := sarama.NewClient(brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("kafka broker: connect: %w", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("kafka broker: open producer: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &Broker{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		producer: producer,
		handlers: make(map[string]broker.ReplyHandler),
	}

	if len(cfg.ReplyTopics) > 0 {
		group, err := sarama.NewConsumerGroupFromClient(cfg.ConsumerGroup, client)
		if err != nil {
			_ = producer.Close()
			_ = client.Close()
			return nil, fmt.Errorf("kafka broker: open consumer group: %w", err)
		}
		b.consumerGroup = group

		consumeCtx, cancel := context.WithCancel(ctx)
		b.cancel = cancel
		b.wg.Add(1)
		go b.consume(consumeCtx)
	}

	return b, nil
}

func buildSaramaConfig(cfg Config) (*sarama.Config, error) {
	saramaCfg := sarama.NewConfig()

	version := sarama.DefaultVersion
	if cfg.Version != "" {
		parsed, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("parse kafka version %q: %w", cfg.Version, err)
		}
		version = parsed
	}
	saramaCfg.Version = version

	if cfg.ClientID != "" {
		saramaCfg.ClientID = cfg.ClientID
	}

	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Return.Errors = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll

	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	if cfg.TLS != nil && cfg.TLS.Enable {
		saramaCfg.Net.TLS.Enable = true
		saramaCfg.Net.TLS.Config = &tls.Config{
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		}
	}

	return saramaCfg, nil
}

var _ broker.Broker = (*Broker)(nil)

// SendTask implements broker.Broker by publishing an envelope to the
// queue's Kafka topic, keyed by taskName so compacted topics retain only
// the latest message per task.
func (b *Broker) SendTask(_ context.Context, queue, taskName string, sagaID int64, payload map[string]any) (string, error) {
	body, err := json.Marshal(envelope{SagaID: sagaID, TaskName: taskName, Payload: payload})
	if err != nil {
		return "", fmt.Errorf("kafka broker: encode envelope: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: queue,
		Key:   sarama.StringEncoder(taskName),
		Value: sarama.ByteEncoder(body),
	}

	partition, offset, err := b.producer.SendMessage(msg)
	if err != nil {
		return "", fmt.Errorf("kafka broker: publish %q to %q: %w", taskName, queue, err)
	}

	return fmt.Sprintf("%s/%d/%d", queue, partition, offset), nil
}

// BindHandler implements broker.Broker. Binding the same task name twice
// replaces the previously bound handler.
func (b *Broker) BindHandler(taskName string, handler broker.ReplyHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[taskName] = handler
	return nil
}

// Close implements broker.Broker.
func (b *Broker) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
			b.wg.Wait()
		}
		if b.consumerGroup != nil {
			if err := b.consumerGroup.Close(); err != nil {
				closeErr = err
			}
		}
		if err := b.producer.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		if err := b.client.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	})
	return closeErr
}

func (b *Broker) consume(ctx context.Context) {
	defer b.wg.Done()

	handler := &consumerGroupHandler{broker: b}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := b.consumerGroup.Consume(ctx, b.cfg.ReplyTopics, handler); err != nil {
			if err == sarama.ErrClosedConsumerGroup {
				return
			}
			b.logger.Error("kafka broker: consume loop error", "error", err)
			time.Sleep(time.Second)
		}
	}
}

func (b *Broker) dispatch(ctx context.Context, raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		b.logger.Error("kafka broker: malformed envelope", "error", err)
		return nil
	}

	b.mu.RLock()
	handler, ok := b.handlers[env.TaskName]
	b.mu.RUnlock()

	if !ok {
		b.logger.Error("kafka broker: no handler bound for task", "task_name", env.TaskName, "saga_id", env.SagaID)
		return nil
	}

	return handler(ctx, env.SagaID, env.TaskName, env.Payload)
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler, decoding
// each claimed message's envelope and routing it through the broker's
// bound handlers.
type consumerGroupHandler struct {
	broker *Broker
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.broker.dispatch(session.Context(), msg.Value); err != nil {
			h.broker.logger.Error("kafka broker: reply handler error", "error", err, "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
			continue
		}
		session.MarkMessage(msg, "")
	}
	return nil
}
