// Package config sources and validates the process-wide directives of
// spec.md §6: global tunables (nbthread, maxconn, tune.*), the
// h1-case-adjust directives, and per-proxy timeout/option directives.
// Directive parsing itself is an out-of-scope collaborator (config
// language, TLS, the poller) — this package only turns already-sourced
// key/value pairs into validated Go values, the way the teacher's
// getenvInt/getDurEnv env-var convention does, generalized to
// viper-backed sourcing (env, flags, an optional file) plus
// validator/v10 struct-tag bounds checking.
package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// MaxThreads bounds nbthread, per spec.md §6.
const MaxThreads = 64

// Global holds the process-wide tunables of spec.md §6.
type Global struct {
	NbThread         int `mapstructure:"nbthread" validate:"gte=1,lte=64"`
	MaxConn          int `mapstructure:"maxconn" validate:"gte=1"`
	RunqueueDepth    int `mapstructure:"tune.runqueue-depth" validate:"gte=1"`
	LowLatency       bool `mapstructure:"tune.sched.low-latency"`
	TuneFailAllocPct int `mapstructure:"tune.fail-alloc" validate:"gte=0,lte=100"`
	H1CaseAdjustFile string `mapstructure:"h1-case-adjust-file"`
}

// ProxyTimeouts bundles one proxy's "timeout *" directives, in
// milliseconds (spec.md §6, consumed by internal/h1.Timeouts).
type ProxyTimeouts struct {
	Client        int `mapstructure:"timeout.client" validate:"gte=0"`
	ClientFin     int `mapstructure:"timeout.clientfin" validate:"gte=0"`
	HTTPKeepAlive int `mapstructure:"timeout.http-keep-alive" validate:"gte=0"`
}

// ProxyOptions bundles one proxy's relevant "option *" directives
// (spec.md §6, consumed by internal/h1.Options).
type ProxyOptions struct {
	HTTPClose   bool `mapstructure:"option.httpclose"`
	ServerClose bool `mapstructure:"option.server-close"`
}

// Proxy is one frontend or backend's directive set.
type Proxy struct {
	Name       string `mapstructure:"name" validate:"required"`
	IsFrontend bool   `mapstructure:"frontend"`
	Bind       string `mapstructure:"bind" validate:"required_if=IsFrontend true"`
	Timeouts   ProxyTimeouts `mapstructure:"timeouts"`
	Options    ProxyOptions  `mapstructure:"options"`
}

// Config is the fully-sourced, validated directive set.
type Config struct {
	Global  Global  `mapstructure:"global"`
	Proxies []Proxy `mapstructure:"proxies"`
}

// Load sources directives from environment variables (prefixed MINCORE_,
// nested keys joined with "_"), an optional directives file at path (any
// viper-supported format: yaml/json/toml), and applies the defaults
// below, then validates the result.
func Load(path string) (*Config, error) {
	// "::" separates nesting levels so that dotted directive names such as
	// tune.runqueue-depth stay single keys matching the mapstructure tags.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetEnvPrefix("mincore")
	v.SetEnvKeyReplacer(strings.NewReplacer("::", "_", ".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("global::nbthread", 4)
	v.SetDefault("global::maxconn", 2000)
	v.SetDefault("global::tune.runqueue-depth", 200)
	v.SetDefault("global::tune.fail-alloc", 0)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config: reading %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: unmarshal")
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: validation")
	}
	return &cfg, nil
}
