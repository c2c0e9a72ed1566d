package main

import (
	"sipac-backend/internal/api"
	"sipac-backend/internal/components/telemetry"
	"sipac-backend/internal/service"
)

type CacheConfig struct {
	// RedisAddr shares the session between instances when set, otherwise it is kept
	// in memory.
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDb       int    `json:"redis_db"`
	RedisPrefix   string `json:"redis_prefix"`
}

type ApiConfig struct {
	Port        int         `json:"port"`
	AccessToken string      `json:"access_token"`
	Routes      []api.Route `json:"routes"`
}

type TelemetryConfig struct {
	ServiceName string                  `json:"service_name"`
	Tracing     telemetry.TracingConfig `json:"tracing"`
}

type Config struct {
	service.Config
	Cache     CacheConfig     `json:"cache"`
	Api       ApiConfig       `json:"api"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

const (
	defaultTimezone    = "America/Fortaleza"
	defaultRefreshCron = "0 7-18 * * 1-5"
	defaultPort        = 8000
)

func (c Config) withDefaults() Config {
	if c.Portal.Timezone == "" {
		c.Portal.Timezone = defaultTimezone
	}
	if c.Api.Port == 0 {
		c.Api.Port = defaultPort
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "sipac-server"
	}
	return c
}
