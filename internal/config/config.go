// Package config resolves process configuration from flags and environment
// variables into the value object consumed by cmd/depthfeed.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Mode selects a Distribution Fabric variant.
type Mode string

const (
	ModeShared       Mode = "shared"
	ModeBroadcast    Mode = "broadcast"
	ModeSharedMemory Mode = "shared_memory"
)

// Exchange selects an endpoint triple.
type Exchange string

const (
	ExchangeSpot    Exchange = "spot"
	ExchangeFutures Exchange = "futures"
)

// Endpoint is the resolved (ws_url, rest_url, suffix, symbol) tuple for an
// Exchange, per spec §6.1.
type Endpoint struct {
	WSURL   string
	RESTURL string
	Suffix  string
	Symbol  string
}

var endpoints = map[Exchange]Endpoint{
	ExchangeSpot: {
		WSURL:   "wss://stream.binance.us:9443/ws",
		RESTURL: "https://api.binance.us/api/v3/depth",
		Suffix:  "@depth@100ms",
		Symbol:  "BTCUSD",
	},
	ExchangeFutures: {
		WSURL:   "wss://fstream.binance.com/ws",
		RESTURL: "https://fapi.binance.com/fapi/v1/depth",
		Suffix:  "@depth",
		Symbol:  "BTCUSDT",
	},
}

// Endpoint returns the endpoint triple for the given exchange, defaulting to
// futures if unrecognized.
func (e Exchange) Endpoint() Endpoint {
	if ep, ok := endpoints[e]; ok {
		return ep
	}
	return endpoints[ExchangeFutures]
}

// Config is the resolved single-process configuration.
type Config struct {
	Mode     Mode
	Exchange Exchange
	Depth    int

	HTTPAddr string
	RedisURL string

	AuditDir string
}

// Load parses flags (overridable via environment variables) into a Config.
func Load() *Config {
	c := &Config{}

	mode := flag.String("mode", envStr("DEPTHFEED_MODE", string(ModeShared)), "distribution fabric: shared, broadcast, shared_memory")
	exchange := flag.String("exchange", envStr("DEPTHFEED_EXCHANGE", string(ExchangeFutures)), "exchange: spot, futures")
	depth := flag.Int("depth", envInt("DEPTHFEED_DEPTH", 15), "max levels per side in emitted slices")
	httpAddr := flag.String("http-addr", envStr("DEPTHFEED_HTTP_ADDR", ":8080"), "status/metrics HTTP listen address")
	redisURL := flag.String("redis-url", envStr("DEPTHFEED_REDIS_URL", ""), "redis URL backing the leader-election cell (empty = in-memory cell)")
	auditDir := flag.String("audit-dir", envStr("DEPTHFEED_AUDIT_DIR", "logs"), "directory for async slice audit logs")

	flag.Parse()

	c.Mode = Mode(*mode)
	c.Exchange = Exchange(*exchange)
	c.Depth = *depth
	c.HTTPAddr = *httpAddr
	c.RedisURL = *redisURL
	c.AuditDir = *auditDir

	return c
}

// Validate reports a descriptive error for a non-positive Depth or an
// unrecognized Mode. Exchange is not checked here: an unrecognized value
// falls back to futures in Exchange.Endpoint.
func (c *Config) Validate() error {
	if c.Depth <= 0 {
		return fmt.Errorf("config: depth must be positive, got %d", c.Depth)
	}
	switch c.Mode {
	case ModeShared, ModeBroadcast, ModeSharedMemory:
	default:
		return fmt.Errorf("config: unrecognized mode %q", c.Mode)
	}
	return nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}
