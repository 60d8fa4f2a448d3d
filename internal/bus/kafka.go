package bus

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/scenegraph/sgeval/internal/pkg/errors"
	"github.com/scenegraph/sgeval/internal/pkg/logger"
)

// Kafka record headers set on every published event.
const (
	HeaderEventID = "event_id"
	HeaderRunID   = "run_id"
)

const consumeRetryDelay = time.Second

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string
	Version       string        // e.g. "2.8.0"
	Timeout       time.Duration // dial/read/write, default 10s
	TopicPrefix   string        // prepended to every bus topic
}

// KafkaBus publishes events to Kafka, keyed by run ID so the events of one
// run stay on one partition in order. Subscribed topics are consumed by a
// single consumer group session that is restarted whenever a topic is added.
type KafkaBus struct {
	config   KafkaConfig
	client   sarama.Client
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup
	log      *logger.Logger

	mu        sync.RWMutex
	handlers  map[string][]Handler
	closed    bool
	consuming bool

	ctx     context.Context
	cancel  context.CancelFunc
	restart context.CancelFunc
	wg      sync.WaitGroup
}

// NewKafkaBus connects to the brokers in cfg.
func NewKafkaBus(cfg KafkaConfig, log *logger.Logger) (*KafkaBus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.ConfigurationError("kafka brokers cannot be empty")
	}
	if cfg.ConsumerGroup == "" {
		return nil, errors.ConfigurationError("kafka consumer group cannot be empty")
	}

	saramaCfg, err := newSaramaConfig(&cfg)
	if err != nil {
		return nil, err
	}

	client, err := sarama.NewClient(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka client", err)
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka producer", err)
	}
	group, err := sarama.NewConsumerGroupFromClient(cfg.ConsumerGroup, client)
	if err != nil {
		producer.Close()
		client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka consumer group", err)
	}

	b := newKafkaBus(cfg, producer, log)
	b.client = client
	b.group = group
	return b, nil
}

func newKafkaBus(cfg KafkaConfig, producer sarama.SyncProducer, log *logger.Logger) *KafkaBus {
	if log == nil {
		log = logger.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaBus{
		config:   cfg,
		producer: producer,
		log:      log,
		handlers: make(map[string][]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// newSaramaConfig fills cfg defaults and derives the client config.
func newSaramaConfig(cfg *KafkaConfig) (*sarama.Config, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "sgeval-bus"
	}
	if cfg.Version == "" {
		cfg.Version = "2.8.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, errors.Wrap(errors.CodeConfiguration, "invalid kafka version", err)
	}

	c := sarama.NewConfig()
	c.Version = version
	c.ClientID = cfg.ClientID
	c.Producer.Return.Successes = true
	c.Producer.Retry.Max = 3
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Partitioner = sarama.NewHashPartitioner
	c.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
	c.Consumer.Offsets.Initial = sarama.OffsetNewest
	c.Net.DialTimeout = cfg.Timeout
	c.Net.ReadTimeout = cfg.Timeout
	c.Net.WriteTimeout = cfg.Timeout
	return c, nil
}

// kafkaTopic maps a bus topic to its Kafka topic name.
func (b *KafkaBus) kafkaTopic(topic string) string {
	return b.config.TopicPrefix + topic
}

// encodeMessage turns an event into a producer record.
func (b *KafkaBus) encodeMessage(event Event) (*sarama.ProducerMessage, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "failed to marshal event", err)
	}

	key := event.RunID
	if key == "" {
		key = event.ID
	}
	msg := &sarama.ProducerMessage{
		Topic: b.kafkaTopic(event.Topic),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventID), Value: []byte(event.ID)},
		},
	}
	if event.RunID != "" {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(HeaderRunID), Value: []byte(event.RunID)})
	}
	return msg, nil
}

// decodeMessage reads an event back from a consumed record. Records written
// by other producers may omit the topic; it is recovered from the Kafka topic.
func (b *KafkaBus) decodeMessage(msg *sarama.ConsumerMessage) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return Event{}, err
	}
	if event.Topic == "" {
		event.Topic = strings.TrimPrefix(msg.Topic, b.config.TopicPrefix)
	}
	return event, nil
}

// Publish sends event synchronously and waits for all in-sync replicas.
func (b *KafkaBus) Publish(ctx context.Context, event Event) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}

	msg, err := b.encodeMessage(event)
	if err != nil {
		return err
	}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		return errors.Wrap(errors.CodeUnavailable, "failed to publish to kafka", err)
	}
	return nil
}

// Subscribe adds handler for topic. The first subscription starts the
// consumer loop; a new topic restarts its session.
func (b *KafkaBus) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}

	isNewTopic := len(b.handlers[topic]) == 0
	b.handlers[topic] = append(b.handlers[topic], handler)
	if !isNewTopic || b.group == nil {
		return nil
	}

	if !b.consuming {
		b.consuming = true
		b.wg.Add(1)
		go b.consume()
	} else if b.restart != nil {
		b.restart()
	}
	return nil
}

// subscribedTopics returns the Kafka topics of the current subscriptions.
func (b *KafkaBus) subscribedTopics() []string {
	topics := make([]string, 0, len(b.handlers))
	for topic := range b.handlers {
		topics = append(topics, b.kafkaTopic(topic))
	}
	slices.Sort(topics)
	return topics
}

func (b *KafkaBus) consume() {
	defer b.wg.Done()

	for b.ctx.Err() == nil {
		b.mu.Lock()
		topics := b.subscribedTopics()
		session, restart := context.WithCancel(b.ctx)
		b.restart = restart
		b.mu.Unlock()

		err := b.group.Consume(session, topics, &claimHandler{bus: b})
		interrupted := session.Err() != nil
		restart()
		if err == nil || interrupted {
			continue
		}

		b.log.Warn("Kafka consumer error", "topics", topics, "error", err.Error())
		select {
		case <-b.ctx.Done():
		case <-time.After(consumeRetryDelay):
		}
	}
}

func (b *KafkaBus) dispatch(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Topic]
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			b.log.Warn("Event handler failed",
				"topic", event.Topic,
				"event_id", event.ID,
				"run_id", event.RunID,
				"error", err.Error(),
			)
		}
	}
}

// Close stops consuming and releases the Kafka client.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.handlers = nil
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	var errs []error
	if b.group != nil {
		if err := b.group.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close consumer group: %w", err))
		}
	}
	if b.producer != nil {
		if err := b.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close producer: %w", err))
		}
	}
	if b.client != nil && !b.client.Closed() {
		if err := b.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close client: %w", err))
		}
	}
	if len(errs) > 0 {
		return errors.Wrap(errors.CodeInternal, "closing kafka bus", stderrors.Join(errs...))
	}
	return nil
}

// claimHandler implements sarama.ConsumerGroupHandler.
type claimHandler struct {
	bus *KafkaBus
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			event, err := h.bus.decodeMessage(msg)
			if err != nil {
				h.bus.log.Warn("Dropping undecodable Kafka message",
					"topic", msg.Topic,
					"offset", msg.Offset,
					"error", err.Error(),
				)
			} else {
				h.bus.dispatch(session.Context(), event)
			}
			session.MarkMessage(msg, "")
		}
	}
}

// ParseKafkaBrokers splits a comma-separated broker list, dropping blanks.
func ParseKafkaBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
