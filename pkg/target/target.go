// Package target defines the construction parameters for a single connection
// pool: the WebSocket RPC endpoint it dials, the namespace/database it
// selects on each session, and the sizing/timeout knobs that govern the
// pool's elastic behavior.
package target

import (
	"crypto/tls"
	"fmt"
	"time"
)

// Target is the configuration for one pool, recognized by the YAML loader
// in internal/config and passable directly to pool.New.
type Target struct {
	Name        string            `yaml:"name"`
	URI         string            `yaml:"uri"`
	Credentials map[string]string `yaml:"credentials"`
	Namespace   string            `yaml:"namespace"`
	Database    string            `yaml:"database"`

	MinSize int `yaml:"min_size"`
	MaxSize int `yaml:"max_size"`

	ConnectionTimeout   time.Duration `yaml:"connection_timeout"`
	AcquisitionTimeout  time.Duration `yaml:"acquisition_timeout"`
	MaxIdleTime         time.Duration `yaml:"max_idle_time"`
	MaxLifetime         time.Duration `yaml:"max_lifetime"`
	MaxUsageCount       int           `yaml:"max_usage_count"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`

	ResetOnReturn   bool   `yaml:"reset_on_return"`
	SchemaBootstrap string `yaml:"schema_bootstrap"`

	// TLSConfig is not YAML-loadable; callers that need TLS set it after
	// loading. When non-nil the transport dials with TLS.
	TLSConfig *tls.Config `yaml:"-"`
}

// ApplyDefaults fills in the defaults from spec §6 for any zero-valued field.
// ResetOnReturn is not defaulted: a target that leaves it unset gets false.
func (t *Target) ApplyDefaults() {
	if t.MinSize == 0 {
		t.MinSize = 2
	}
	if t.MaxSize == 0 {
		t.MaxSize = 10
	}
	if t.ConnectionTimeout == 0 {
		t.ConnectionTimeout = 5 * time.Second
	}
	if t.AcquisitionTimeout == 0 {
		t.AcquisitionTimeout = 10 * time.Second
	}
	if t.MaxIdleTime == 0 {
		t.MaxIdleTime = 300 * time.Second
	}
	if t.MaxLifetime == 0 {
		t.MaxLifetime = 3600 * time.Second
	}
	if t.MaxUsageCount == 0 {
		t.MaxUsageCount = 1000
	}
	if t.HealthCheckInterval == 0 {
		t.HealthCheckInterval = 30 * time.Second
	}
	if t.RetryAttempts == 0 {
		t.RetryAttempts = 3
	}
	if t.RetryDelay == 0 {
		t.RetryDelay = 1 * time.Second
	}
}

// Validate checks the mandatory and cross-field constraints from spec §4.4's
// Initialization step. ApplyDefaults should be called first so zero-valued
// optional fields don't spuriously fail validation.
func (t *Target) Validate() error {
	if t.URI == "" {
		return fmt.Errorf("target %q: uri is required", t.Name)
	}
	if t.MinSize < 1 {
		return fmt.Errorf("target %q: min_size must be >= 1", t.Name)
	}
	if t.MaxSize < t.MinSize {
		return fmt.Errorf("target %q: max_size (%d) must be >= min_size (%d)", t.Name, t.MaxSize, t.MinSize)
	}
	if t.ConnectionTimeout <= 0 {
		return fmt.Errorf("target %q: connection_timeout must be positive", t.Name)
	}
	if t.AcquisitionTimeout <= 0 {
		return fmt.Errorf("target %q: acquisition_timeout must be positive", t.Name)
	}
	if t.MaxIdleTime <= 0 {
		return fmt.Errorf("target %q: max_idle_time must be positive", t.Name)
	}
	if t.MaxLifetime <= 0 {
		return fmt.Errorf("target %q: max_lifetime must be positive", t.Name)
	}
	if t.HealthCheckInterval <= 0 {
		return fmt.Errorf("target %q: health_check_interval must be positive", t.Name)
	}
	if t.RetryAttempts < 0 {
		return fmt.Errorf("target %q: retry_attempts must be non-negative", t.Name)
	}
	if t.RetryDelay < 0 {
		return fmt.Errorf("target %q: retry_delay must be non-negative", t.Name)
	}
	return nil
}
