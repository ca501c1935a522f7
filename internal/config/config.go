// Package config loads the authority and observer binaries' runtime
// configuration with flags > env > file > default precedence, the way
// nabbar-golib layers viper under cobra flags. See SPEC_FULL.md §2.1.
package config

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AuthorityConfig is the authority binary's full runtime configuration.
type AuthorityConfig struct {
	Port               int     `mapstructure:"port"`
	Rows               int     `mapstructure:"rows"`
	Cols               int     `mapstructure:"cols"`
	TickRateHz         float64 `mapstructure:"tick_rate"`
	HeartbeatThreshold int     `mapstructure:"heartbeat_threshold"`
	RetransmitDepth    int     `mapstructure:"retransmit_depth"`
	MetricsDir         string  `mapstructure:"metrics_dir"`
	APIPort            int     `mapstructure:"api_port"`
}

// ObserverConfig is the observer binary's full runtime configuration,
// with flag names matching spec.md §6 exactly.
type ObserverConfig struct {
	ClientID    int    `mapstructure:"client_id"`
	Server      string `mapstructure:"server"`
	Port        int    `mapstructure:"port"`
	DurationSec int    `mapstructure:"duration"`
	Output      string `mapstructure:"output"`
	NoAutoPlay  bool   `mapstructure:"no_auto_play"`
}

// BindAuthorityFlags registers the authority's cobra flags and binds
// them, env vars, and a config file into v with flags taking highest
// precedence.
func BindAuthorityFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.Int("port", 12000, "UDP port to listen on")
	flags.Int("rows", 5, "grid rows")
	flags.Int("cols", 5, "grid columns")
	flags.Float64("tick-rate", 21.0, "authoritative tick rate, Hz")
	flags.Int("heartbeat-threshold", 10, "unacked heartbeats before a client is evicted")
	flags.Int("retransmit-depth", 3, "max buffered un-acked snapshots per client")
	flags.String("metrics-dir", ".", "directory for game_metrics/authoritative_positions CSVs")
	flags.Int("api-port", 12001, "debug/metrics HTTP surface port")

	bindCommon(v, flags, map[string]string{
		"port":                "port",
		"rows":                "rows",
		"cols":                "cols",
		"tick-rate":           "tick_rate",
		"heartbeat-threshold": "heartbeat_threshold",
		"retransmit-depth":    "retransmit_depth",
		"metrics-dir":         "metrics_dir",
		"api-port":            "api_port",
	})

	// spec.md §6 names this env var literally, unprefixed, unlike every
	// other authority setting (which rides the GRIDCLASH_ prefix via
	// v.AutomaticEnv in New). Bind it explicitly so METRICS_OUTPUT_DIR
	// keeps working the way the original harness expects.
	_ = v.BindEnv("metrics_dir", "METRICS_OUTPUT_DIR")
}

// BindObserverFlags registers the observer's cobra flags (spec.md §6).
func BindObserverFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.Int("client-id", 0, "observer-assigned client identifier for metrics rows")
	flags.String("server", "localhost", "authority host")
	flags.Int("port", 12000, "authority UDP port")
	flags.Int("duration", 30, "seconds to run before exiting, 0 = until GAME_OVER")
	flags.String("output", ".", "directory for this observer's metrics CSV")
	flags.Bool("no-auto-play", false, "disable the scripted auto-play input source")

	bindCommon(v, flags, map[string]string{
		"client-id":    "client_id",
		"server":       "server",
		"port":         "port",
		"duration":     "duration",
		"output":       "output",
		"no-auto-play": "no_auto_play",
	})
}

// bindCommon binds each cobra/pflag flag to its viper key so that, once
// AutomaticEnv and a config file are also registered on v, the
// effective precedence is flags > env > file > default.
func bindCommon(v *viper.Viper, flags *pflag.FlagSet, flagToKey map[string]string) {
	for flagName, key := range flagToKey {
		_ = v.BindPFlag(key, flags.Lookup(flagName))
	}
}

// LoadAuthorityConfig reads AuthorityConfig out of v after flags have
// been parsed.
func LoadAuthorityConfig(v *viper.Viper) (AuthorityConfig, error) {
	var cfg AuthorityConfig
	err := v.Unmarshal(&cfg)
	return cfg, err
}

// LoadObserverConfig reads ObserverConfig out of v after flags have
// been parsed.
func LoadObserverConfig(v *viper.Viper) (ObserverConfig, error) {
	var cfg ObserverConfig
	err := v.Unmarshal(&cfg)
	return cfg, err
}

// New constructs a viper.Viper wired for GRIDCLASH_* env vars, an
// optional --config file, and the flags > env > file > default
// precedence spec.md's ambient stack calls for.
func New(envPrefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}
