package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr      string
	DBDSN         string
	JWTIssuer     string
	JWTSecret     string
	JWTTTL        time.Duration
	InternalToken string
	WSOrigin      string
	Mode          string

	// Price feed. QuoteFeedURL switches to the live websocket source;
	// empty runs the synthetic generator.
	QuoteFeedURL string
	FeedSeed     int64
	SpreadPips   float64

	// Execution defaults.
	SpreadMarkupPips string
	MaxSlippagePips  string
	MonitorInterval  time.Duration

	FaucetEnabled   bool
	FaucetMaxTokens int64
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	// Empty DB_DSN runs on in-memory stores; fine for development, refused
	// in production below.
	c.DBDSN = os.Getenv("DB_DSN")
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	jwtTTL := os.Getenv("JWT_TTL")
	if jwtTTL == "" {
		c.JWTTTL = 24 * time.Hour
	} else {
		d, err := time.ParseDuration(jwtTTL)
		if err != nil {
			return c, err
		}
		c.JWTTTL = d
	}
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}
	c.WSOrigin = os.Getenv("WS_ORIGIN")
	if c.WSOrigin == "" {
		missing = append(missing, "WS_ORIGIN")
	}
	c.Mode = strings.ToLower(strings.TrimSpace(os.Getenv("ARENA_MODE")))
	if c.Mode == "" {
		c.Mode = "development"
	}
	if c.Mode != "development" && c.Mode != "production" {
		return c, errors.New("invalid ARENA_MODE: use development or production")
	}
	if c.Mode == "production" && c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}

	c.QuoteFeedURL = os.Getenv("QUOTE_FEED_URL")
	if raw := strings.TrimSpace(os.Getenv("FEED_SEED")); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c, errors.New("invalid FEED_SEED")
		}
		c.FeedSeed = seed
	}
	if raw := strings.TrimSpace(os.Getenv("FEED_SPREAD_PIPS")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return c, errors.New("invalid FEED_SPREAD_PIPS")
		}
		c.SpreadPips = v
	}

	c.SpreadMarkupPips = os.Getenv("SPREAD_MARKUP_PIPS")
	if c.SpreadMarkupPips == "" {
		c.SpreadMarkupPips = "0.5"
	}
	c.MaxSlippagePips = os.Getenv("MAX_SLIPPAGE_PIPS")
	if c.MaxSlippagePips == "" {
		c.MaxSlippagePips = "1"
	}
	if raw := os.Getenv("MONITOR_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return c, errors.New("invalid MONITOR_INTERVAL")
		}
		c.MonitorInterval = d
	} else {
		c.MonitorInterval = time.Second
	}

	if raw := os.Getenv("FAUCET_ENABLED"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return c, errors.New("invalid FAUCET_ENABLED")
		}
		c.FaucetEnabled = b
	} else {
		c.FaucetEnabled = c.Mode == "development"
	}
	c.FaucetMaxTokens = 10_000
	if raw := strings.TrimSpace(os.Getenv("FAUCET_MAX_TOKENS")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c, errors.New("invalid FAUCET_MAX_TOKENS")
		}
		c.FaucetMaxTokens = v
	}

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ", "))
	}
	return c, nil
}
