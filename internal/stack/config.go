package stack

import (
	"guapassist-backend/internal/browser"
	"guapassist-backend/internal/scrapers/guap"
	"guapassist-backend/internal/session"
	"guapassist-backend/internal/store"
	"guapassist-backend/internal/upstream"
	configlibsql "guapassist-backend/lib/configutil/libsql"
	"time"
)

type SessionConfig struct {
	TimeoutMinutes  int `json:"timeout_minutes"`
	LoginsPerMinute int `json:"logins_per_minute"`
	// CleanupCron is when expired sessions are closed, defaults to every
	// 5 minutes.
	CleanupCron string `json:"cleanup_cron"`
}

type CacheConfig struct {
	FreshMinutes  int `json:"fresh_minutes"`
	MemoryEntries int `json:"memory_entries"`
}

type EngineConfig struct {
	NavigationSeconds int  `json:"navigation_seconds"`
	ReadySeconds      int  `json:"ready_seconds"`
	InvertWeekParity  bool `json:"invert_week_parity"`
}

type UpstreamConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	DisableBypass     bool    `json:"disable_bypass"`
}

type Config struct {
	Port int `json:"port"`
	// AccessToken protects /api when set.
	AccessToken string                `json:"access_token"`
	Database    configlibsql.Struct   `json:"database"`
	Browser     browser.ChromeOptions `json:"browser"`
	Session     SessionConfig         `json:"session"`
	Cache       CacheConfig           `json:"cache"`
	Engine      EngineConfig          `json:"engine"`
	Upstream    UpstreamConfig        `json:"upstream"`
}

// ListenPort defaults to 8000.
func (c Config) ListenPort() int {
	if c.Port == 0 {
		return 8000
	}
	return c.Port
}

func (c Config) CleanupCron() string {
	if c.Session.CleanupCron == "" {
		return "@every 5m"
	}
	return c.Session.CleanupCron
}

func (c Config) SessionOptions() session.Options {
	return session.Options{
		Timeout:         time.Duration(c.Session.TimeoutMinutes) * time.Minute,
		LoginsPerMinute: c.Session.LoginsPerMinute,
	}
}

func (c Config) StoreOptions() store.Options {
	return store.Options{
		FreshFor:      time.Duration(c.Cache.FreshMinutes) * time.Minute,
		MemoryEntries: c.Cache.MemoryEntries,
	}
}

func (c Config) EngineOptions() guap.EngineOptions {
	return guap.EngineOptions{
		Timeouts: guap.EngineTimeouts{
			Navigation: time.Duration(c.Engine.NavigationSeconds) * time.Second,
			Ready:      time.Duration(c.Engine.ReadySeconds) * time.Second,
		},
		InvertWeekParity: c.Engine.InvertWeekParity,
	}
}

func (c Config) UpstreamOptions() upstream.Options {
	return upstream.Options{
		RequestsPerSecond: c.Upstream.RequestsPerSecond,
		DisableBypass:     c.Upstream.DisableBypass,
	}
}
