package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "EVLINK_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "EVLINK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_conns", typ: kInt, env: "EVLINK_SERVER_MAX_CONNS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConns = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConns },
	},
	{
		key: "log.level", typ: kString, env: "EVLINK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "latency.extract_base", typ: kDuration, env: "EVLINK_LATENCY_EXTRACT_BASE",
		apply:   func(cfg *Config, v any) { cfg.Latency.ExtractBase = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Latency.ExtractBase },
	},
	{
		key: "latency.extract_per_file", typ: kDuration, env: "EVLINK_LATENCY_EXTRACT_PER_FILE",
		apply:   func(cfg *Config, v any) { cfg.Latency.ExtractPerFile = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Latency.ExtractPerFile },
	},
	{
		key: "latency.extract_max", typ: kDuration, env: "EVLINK_LATENCY_EXTRACT_MAX",
		apply:   func(cfg *Config, v any) { cfg.Latency.ExtractMax = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Latency.ExtractMax },
	},
	{
		key: "latency.link", typ: kDuration, env: "EVLINK_LATENCY_LINK",
		apply:   func(cfg *Config, v any) { cfg.Latency.Link = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Latency.Link },
	},
	{
		key: "latency.summary", typ: kDuration, env: "EVLINK_LATENCY_SUMMARY",
		apply:   func(cfg *Config, v any) { cfg.Latency.Summary = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Latency.Summary },
	},
	{
		key: "linking.seed", typ: kInt, env: "EVLINK_LINKING_SEED",
		apply:   func(cfg *Config, v any) { cfg.Linking.Seed = v.(int) },
		extract: func(cfg Config) any { return cfg.Linking.Seed },
	},
	{
		key: "linking.probability", typ: kFloat, env: "EVLINK_LINKING_PROBABILITY",
		apply:   func(cfg *Config, v any) { cfg.Linking.Probability = v.(float64) },
		extract: func(cfg Config) any { return cfg.Linking.Probability },
	},
	{
		key: "report.student_id", typ: kString, env: "EVLINK_REPORT_STUDENT_ID",
		apply:   func(cfg *Config, v any) { cfg.Report.StudentID = v.(string) },
		extract: func(cfg Config) any { return cfg.Report.StudentID },
	},
	{
		key: "extract.concurrency", typ: kInt, env: "EVLINK_EXTRACT_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Extract.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Extract.Concurrency },
	},
	{
		key: "extract.watch_pattern", typ: kString, env: "EVLINK_EXTRACT_WATCH_PATTERN",
		apply:   func(cfg *Config, v any) { cfg.Extract.WatchPattern = v.(string) },
		extract: func(cfg Config) any { return cfg.Extract.WatchPattern },
	},
}

// parseValue converts a raw string into the Go type for typ.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kString:
		return raw, nil
	case kInt:
		return strconv.Atoi(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return nil, fmt.Errorf("unknown key type %d", typ)
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetFloat(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetDuration(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		default:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
