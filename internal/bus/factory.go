package bus

import (
	"strings"

	"github.com/scenegraph/sgeval/internal/config"
	"github.com/scenegraph/sgeval/internal/pkg/errors"
	"github.com/scenegraph/sgeval/internal/pkg/logger"
)

// NewBus builds the configured bus, wrapped in a JournaledBus when a journal
// path is set.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	inner, err := newInnerBus(cfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.Journal == "" {
		return inner, nil
	}

	journal, err := OpenJournal(cfg.Journal)
	if err != nil {
		_ = inner.Close()
		return nil, err
	}
	return NewJournaledBus(inner, journal, log), nil
}

func newInnerBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		return NewMemoryBus(log), nil

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.ConfigurationError("kafka brokers not configured")
		}
		group := cfg.KafkaGroup
		if group == "" {
			group = "sgeval"
		}
		return NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: group,
			TopicPrefix:   cfg.KafkaPrefix,
		}, log)
	}
	return nil, errors.ConfigurationError("unknown bus type: "+cfg.Type)
}
