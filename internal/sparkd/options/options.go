// Package options defines sparkd's command-line surface: one flat Options
// struct with an AddFlags/Complete/Validate lifecycle, the shape echoryn's
// hivemind/options package uses for its own run options.
package options

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kiosk404/spark/internal/bridge"
)

// Options holds every flag sparkd accepts. Complete() reads only
// SPARKD_TOKEN from the environment, into Token; every other field comes
// from its flag or its default.
type Options struct {
	StateDir string `json:"state_dir" mapstructure:"state_dir"`

	BindAddress string `json:"bind_address" mapstructure:"bind_address"`
	Port        int    `json:"port" mapstructure:"port"`

	Token        string `json:"-" mapstructure:"token"`
	TokenFile    string `json:"token_file" mapstructure:"token_file"`
	AuthDisabled bool   `json:"auth_disabled" mapstructure:"auth_disabled"`

	BridgeInterval time.Duration `json:"bridge_interval" mapstructure:"bridge_interval"`

	SemanticEnabled bool   `json:"semantic_enabled" mapstructure:"semantic_enabled"`
	MindURL         string `json:"mind_url" mapstructure:"mind_url"`

	LogLevel string `json:"log_level" mapstructure:"log_level"`

	ExportTargets []string `json:"export_targets" mapstructure:"export_targets"`
}

// NewOptions returns an Options populated with the spec's conservative
// defaults, mirroring echoryn's NewOptions() constructors.
func NewOptions() *Options {
	return &Options{
		StateDir:        defaultStateDir(),
		BindAddress:     "127.0.0.1",
		Port:            8787,
		TokenFile:       "",
		BridgeInterval:  bridge.DefaultInterval,
		SemanticEnabled: true,
		LogLevel:        "info",
		ExportTargets:   []string{"CLAUDE.md"},
	}
}

func defaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.spark"
	}
	return ".spark"
}

// AddFlags registers every Options field on fs, the same flat style
// hivemind's sub-option groups use for their own AddFlags.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.StateDir, "state-dir", o.StateDir, "directory holding the daemon's persisted state")
	fs.StringVar(&o.BindAddress, "bind-address", o.BindAddress, "address the ingest HTTP server listens on")
	fs.IntVar(&o.Port, "port", o.Port, "port the ingest HTTP server listens on")
	fs.StringVar(&o.Token, "token", o.Token, "bearer token required of ingest callers (overrides SPARKD_TOKEN/token-file)")
	fs.StringVar(&o.TokenFile, "token-file", o.TokenFile, "file containing the bearer token, read once at startup")
	fs.BoolVar(&o.AuthDisabled, "auth-disabled", o.AuthDisabled, "disable bearer-token auth entirely (loopback-only deployments)")
	fs.DurationVar(&o.BridgeInterval, "bridge-interval", o.BridgeInterval, "bridge cycle period")
	fs.BoolVar(&o.SemanticEnabled, "semantic-enabled", o.SemanticEnabled, "enable the sqlite-vec semantic index")
	fs.StringVar(&o.MindURL, "mind-url", o.MindURL, "optional external Mind service base URL")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level: debug, info, warn, error")
	fs.StringSliceVar(&o.ExportTargets, "export-target", o.ExportTargets, "frontend context file(s) to render advisory context into")
}

// Complete fills in anything AddFlags left zero-valued from the process
// environment, following the CLI-flag-beats-env-var precedence spec §4.1
// sets for the ingest token.
func (o *Options) Complete() error {
	if o.Token == "" {
		o.Token = os.Getenv("SPARKD_TOKEN")
	}
	if o.StateDir == "" {
		o.StateDir = defaultStateDir()
	}
	if len(o.ExportTargets) == 0 {
		o.ExportTargets = []string{"CLAUDE.md"}
	}
	return nil
}

// Validate reports every problem with the completed Options, rather than
// failing on the first one, matching the []error convention the hivemind
// options group uses for its own Validate.
func (o *Options) Validate() []error {
	var errs []error
	if o.StateDir == "" {
		errs = append(errs, fmt.Errorf("state-dir must not be empty"))
	}
	if o.Port <= 0 || o.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", o.Port))
	}
	if o.BridgeInterval < bridge.MinInterval || o.BridgeInterval > bridge.MaxInterval {
		errs = append(errs, fmt.Errorf("bridge-interval %s out of [%s, %s]", o.BridgeInterval, bridge.MinInterval, bridge.MaxInterval))
	}
	if !o.AuthDisabled && o.Token == "" && o.TokenFile == "" {
		errs = append(errs, fmt.Errorf("one of --token, --token-file, SPARKD_TOKEN, or --auth-disabled is required"))
	}
	switch o.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log-level %q must be one of debug, info, warn, error", o.LogLevel))
	}
	return errs
}
