package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/packetwire/internal/packet"
)

// Config is the packetd runtime configuration.
type Config struct {
	Name     string
	LogLevel string
	Listen   ListenConfig
	Decoder  DecoderConfig
	Ops      OpsConfig
	NATS     NATSConfig
}

type ListenConfig struct {
	Addr         string
	Multicore    bool
	NumEventLoop int
	ReusePort    bool
}

type DecoderConfig struct {
	RegionCapacity  int
	MaxPayloadBytes int32
}

type OpsConfig struct {
	Addr            string
	CorsOrigins     []string
	ShutdownTimeout time.Duration
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

func (c NATSConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

func (c DecoderConfig) Limits() packet.Limits {
	return packet.Limits{MaxPayloadBytes: c.MaxPayloadBytes}
}

func Default() Config {
	return Config{
		Name: "packetd",
		Listen: ListenConfig{
			Addr:      "0.0.0.0:5701",
			Multicore: true,
		},
		Decoder: DecoderConfig{
			RegionCapacity:  64 * 1024,
			MaxPayloadBytes: packet.DefaultLimits().MaxPayloadBytes,
		},
		Ops: OpsConfig{
			Addr:            "127.0.0.1:9464",
			ShutdownTimeout: 5 * time.Second,
		},
		NATS: NATSConfig{
			SubjectPrefix: "packetwire.packets",
		},
	}
}

type fileConfig struct {
	Name     string      `toml:"name"`
	LogLevel string      `toml:"log_level"`
	Listen   fileListen  `toml:"listen"`
	Decoder  fileDecoder `toml:"decoder"`
	Ops      fileOps     `toml:"ops"`
	NATS     fileNATS    `toml:"nats"`
}

type fileListen struct {
	Addr         string `toml:"addr"`
	Multicore    bool   `toml:"multicore"`
	NumEventLoop int    `toml:"num_event_loops"`
	ReusePort    bool   `toml:"reuse_port"`
}

type fileDecoder struct {
	RegionCapacity  int   `toml:"region_capacity"`
	MaxPayloadBytes int32 `toml:"max_payload_bytes"`
}

type fileOps struct {
	Addr            string   `toml:"addr"`
	CorsOrigins     []string `toml:"cors_origins"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
}

type fileNATS struct {
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// Load reads path over Default(); keys missing from the file keep their
// defaults.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
	}
	cfg, err := apply(Default(), raw, meta)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func apply(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("listen", "addr") {
		cfg.Listen.Addr = strings.TrimSpace(raw.Listen.Addr)
	}
	if meta.IsDefined("listen", "multicore") {
		cfg.Listen.Multicore = raw.Listen.Multicore
	}
	if meta.IsDefined("listen", "num_event_loops") {
		cfg.Listen.NumEventLoop = raw.Listen.NumEventLoop
	}
	if meta.IsDefined("listen", "reuse_port") {
		cfg.Listen.ReusePort = raw.Listen.ReusePort
	}

	if meta.IsDefined("decoder", "region_capacity") {
		cfg.Decoder.RegionCapacity = raw.Decoder.RegionCapacity
	}
	if meta.IsDefined("decoder", "max_payload_bytes") {
		cfg.Decoder.MaxPayloadBytes = raw.Decoder.MaxPayloadBytes
	}

	if meta.IsDefined("ops", "addr") {
		cfg.Ops.Addr = strings.TrimSpace(raw.Ops.Addr)
	}
	if meta.IsDefined("ops", "cors_origins") {
		cfg.Ops.CorsOrigins = normalizeList(raw.Ops.CorsOrigins)
	}
	if meta.IsDefined("ops", "shutdown_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Ops.ShutdownTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse ops.shutdown_timeout: %w", err)
		}
		cfg.Ops.ShutdownTimeout = d
	}

	if meta.IsDefined("nats", "url") {
		cfg.NATS.URL = strings.TrimSpace(raw.NATS.URL)
	}
	if meta.IsDefined("nats", "subject_prefix") {
		cfg.NATS.SubjectPrefix = strings.TrimSpace(raw.NATS.SubjectPrefix)
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("config missing name")
	}
	if err := validateAddr("listen.addr", cfg.Listen.Addr); err != nil {
		return err
	}
	if cfg.Listen.NumEventLoop < 0 {
		return fmt.Errorf("listen.num_event_loops must not be negative")
	}
	if cfg.Decoder.RegionCapacity < packet.HeaderLen {
		return fmt.Errorf("decoder.region_capacity %d smaller than packet header (%d)", cfg.Decoder.RegionCapacity, packet.HeaderLen)
	}
	if cfg.Decoder.MaxPayloadBytes < 0 {
		return fmt.Errorf("decoder.max_payload_bytes must not be negative")
	}
	if strings.TrimSpace(cfg.Ops.Addr) != "" {
		if err := validateAddr("ops.addr", cfg.Ops.Addr); err != nil {
			return err
		}
	}
	if cfg.Ops.ShutdownTimeout < 0 {
		return fmt.Errorf("ops.shutdown_timeout must not be negative")
	}
	if cfg.NATS.Enabled() && strings.TrimSpace(cfg.NATS.SubjectPrefix) == "" {
		return fmt.Errorf("nats.subject_prefix required when nats.url is set")
	}
	return nil
}

func validateAddr(field, addr string) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s invalid: %w", field, err)
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
