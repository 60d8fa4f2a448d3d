package persistence

import (
	"fmt"
	"time"

	"github.com/scenegraph/sgeval/internal/bus"
	"github.com/scenegraph/sgeval/internal/config"
	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
	"github.com/scenegraph/sgeval/internal/pkg/logger"
)

// NewFromConfig builds the sinks named in cfg.Sink.Types. The bus sink needs
// a non-nil b. Sinks already opened are closed when a later one fails.
func NewFromConfig(cfg *config.Config, b bus.Bus, log *logger.Logger) (*FanOut, error) {
	if log == nil {
		log = logger.Discard()
	}

	var sinks []Sink
	fail := func(err error) (*FanOut, error) {
		_ = NewFanOut(sinks...).Close()
		return nil, err
	}

	for _, kind := range cfg.Sink.Types {
		switch kind {
		case "file":
			s, err := NewFileSink(cfg.Output.Dir, cfg.Output.SaveArtifacts)
			if err != nil {
				return fail(err)
			}
			sinks = append(sinks, s)

		case "redis":
			ttl := time.Duration(cfg.Sink.RedisTTL) * time.Hour
			s, err := NewRedisSink(cfg.Sink.RedisURL, cfg.Sink.RedisPrefix, ttl)
			if err != nil {
				return fail(err)
			}
			sinks = append(sinks, s)

		case "bus":
			if b == nil {
				return fail(apperrors.ConfigurationError("bus sink requires an event bus"))
			}
			sinks = append(sinks, NewBusSink(b, "sgeval"))

		default:
			return fail(apperrors.ConfigurationError(fmt.Sprintf("unknown sink type: %s", kind)))
		}
		log.Debug("Report sink enabled", "sink", kind)
	}

	return NewFanOut(sinks...), nil
}
