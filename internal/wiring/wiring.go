// Package wiring builds the Broker and ResultBackend implementations
// named by config.Config.BrokerType/ResultBackendType, shared between
// cmd/wpys-worker and cmd/wpys-server so both entrypoints construct
// the same backend the same way.
package wiring

import (
	"github.com/opengeo/wpys-go/internal/broker"
	"github.com/opengeo/wpys-go/internal/broker/redisbroker"
	"github.com/opengeo/wpys-go/internal/config"
	"github.com/opengeo/wpys-go/internal/errs"
	"github.com/opengeo/wpys-go/internal/logger"
	"github.com/opengeo/wpys-go/internal/resultbackend"
	"github.com/opengeo/wpys-go/internal/resultbackend/redisbackend"
)

func stringOpt(opts map[string]any, key, def string) string {
	if v, ok := opts[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func intOpt(opts map[string]any, key string, def int) int {
	if v, ok := opts[key]; ok {
		switch t := v.(type) {
		case int:
			return t
		case float64:
			return int(t)
		}
	}
	return def
}

// NewBroker constructs the Broker named by cfg.BrokerType. Only
// "redis" is implemented; any other value is a ConfigError.
func NewBroker(cfg config.Config, log *logger.Logger) (broker.Broker, func(), error) {
	switch cfg.BrokerType {
	case "", "redis":
		opts := redisbroker.Options{
			Addr:     stringOpt(cfg.BrokerOptions, "addr", "localhost:6379"),
			Password: stringOpt(cfg.BrokerOptions, "password", ""),
			DB:       intOpt(cfg.BrokerOptions, "db", 0),
		}
		if ttl, ok := cfg.ExpirationTime(); ok {
			opts.HasExpiration = true
			opts.ExpirationTime = ttl
		}
		b, err := redisbroker.New(opts, log)
		if err != nil {
			return nil, func() {}, err
		}
		return b, func() { _ = b.Close() }, nil
	default:
		return nil, func() {}, errs.New(errs.KindConfig, "unsupported broker_type "+cfg.BrokerType)
	}
}

// NewResultBackend constructs the Backend named by
// cfg.ResultBackendType. Only "redis" is implemented.
func NewResultBackend(cfg config.Config) (resultbackend.Backend, func(), error) {
	switch cfg.ResultBackendType {
	case "", "redis":
		opts := redisbackend.Options{
			Addr:     stringOpt(cfg.ResultBackendOptions, "addr", "localhost:6379"),
			Password: stringOpt(cfg.ResultBackendOptions, "password", ""),
			DB:       intOpt(cfg.ResultBackendOptions, "db", 0),
		}
		if ttl, ok := cfg.ExpirationTime(); ok {
			opts.HasExpiration = true
			opts.ExpirationTime = ttl
		}
		b, err := redisbackend.New(opts)
		if err != nil {
			return nil, func() {}, err
		}
		return b, func() { _ = b.Close() }, nil
	default:
		return nil, func() {}, errs.New(errs.KindConfig, "unsupported result_backend_type "+cfg.ResultBackendType)
	}
}
