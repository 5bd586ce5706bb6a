package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/gateway"
	"github.com/dstl/Apex-SAPIENT-Middleware/idmap"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
	"github.com/dstl/Apex-SAPIENT-Middleware/server"
	"github.com/dstl/Apex-SAPIENT-Middleware/storage"
	"github.com/dstl/Apex-SAPIENT-Middleware/validate"
)

// Config is the full gateway configuration, loaded from a single JSON file.
// Key names follow the deployed config dialect (camelCase), so existing
// deployment files keep working.
type Config struct {
	// LogLevel is DEBUG, INFO, WARN or ERROR. Default INFO.
	LogLevel string `json:"logLevel,omitempty"`
	// MiddlewareID is this gateway's node id in messages it originates.
	// Empty means a random UUID per run.
	MiddlewareID string `json:"middlewareId,omitempty"`

	MessageMaxSizeKB int `json:"messageMaxSizeKb,omitempty"`
	// EnableMessageConversion enables the XML and cross-version translation
	// paths. Default true; nil means unset.
	EnableMessageConversion  *bool `json:"enableMessageConversion,omitempty"`
	EnableTimeSyncAdjustment bool  `json:"enableTimeSyncAdjustment,omitempty"`
	// SendRegistrationAck acknowledges Child registrations. Default true.
	SendRegistrationAck   *bool `json:"sendRegistrationAck,omitempty"`
	AllowPeerRegistration bool  `json:"allowPeerRegistration,omitempty"`

	AutoAssignSensorID AutoAssignConfig      `json:"autoAssignSensorIDInRegistration,omitempty"`
	DetectionFilter    DetectionFilterConfig `json:"detectionConfidenceFiltering,omitempty"`
	Validation         ValidationConfig      `json:"validationOptions,omitempty"`

	Connections []ConnectionConfig `json:"connections"`

	Rollover RolloverConfig `json:"rollover,omitempty"`
	Database DatabaseConfig `json:"database,omitempty"`
	API      APIConfig      `json:"apiConfig,omitempty"`
	Metrics  MetricsConfig  `json:"metricsConfig,omitempty"`
}

// ConnectionConfig is one configured listener or outbound dial.
type ConnectionConfig struct {
	// Type is Child, Peer, Parent or Recorder.
	Type string `json:"type"`
	// Format is XML or PROTO. Defaults by conversion mode.
	Format string `json:"format,omitempty"`
	// ICDVersion pins the protocol version; defaults by format.
	ICDVersion string `json:"icd_version,omitempty"`
	// Host is used only by outbound connections. Default localhost.
	Host string `json:"host,omitempty"`
	Port int    `json:"port"`
	// Outbound dials out instead of listening.
	Outbound bool `json:"outbound,omitempty"`
	// ForwardAll sends a Parent every message, not just high-level ones.
	ForwardAll bool `json:"forwardAll,omitempty"`
}

// AutoAssignConfig controls legacy sensor id assignment at registration.
type AutoAssignConfig struct {
	Enabled    bool  `json:"enabled"`
	StartingID int32 `json:"startingID,omitempty"`
	// StaticNodeIDs pins node ULIDs to fixed legacy ids across restarts.
	StaticNodeIDs map[string]int32 `json:"staticNodeIds,omitempty"`
}

// DetectionFilterConfig is the Child confidence filter.
type DetectionFilterConfig struct {
	Enable          bool    `json:"enable"`
	Threshold       float64 `json:"threshold"`
	StoreInDatabase bool    `json:"storeInDatabase"`
}

// ValidationConfig selects message validation checks.
type ValidationConfig struct {
	// Types lists enabled check names, e.g. "mandatory fields". Empty
	// disables validation.
	Types []string `json:"validationTypes,omitempty"`
	// StrictIDFormat defaults to true.
	StrictIDFormat *bool `json:"strictIdFormat,omitempty"`
	// MessageTimestampRange is [min, max] in seconds around receipt time.
	MessageTimestampRange []float64 `json:"messageTimestampRange,omitempty"`
	// DetectionMinimumGap is in seconds.
	DetectionMinimumGap  *float64 `json:"detectionMinimumGap,omitempty"`
	SupportedICDVersions []string `json:"supportedIcdVersions,omitempty"`
}

// RolloverConfig schedules audit database rotation.
type RolloverConfig struct {
	Enabled bool   `json:"enabled"`
	Unit    string `json:"unit,omitempty"`
	Value   int    `json:"value,omitempty"`
}

// DatabaseConfig locates the audit database.
type DatabaseConfig struct {
	// Directory holds the segment files. Default "data".
	Directory string `json:"directory,omitempty"`
}

// APIConfig is the read-only query API listener.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host,omitempty"`
	Port    int    `json:"port,omitempty"`
}

// MetricsConfig is the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// Load reads, defaults and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config", "Load", "read file")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "config", "Load", "parse json")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields with deployed defaults.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.MessageMaxSizeKB == 0 {
		c.MessageMaxSizeKB = server.DefaultMessageMaxSizeKB
	}
	if c.EnableMessageConversion == nil {
		c.EnableMessageConversion = boolPtr(true)
	}
	if c.SendRegistrationAck == nil {
		c.SendRegistrationAck = boolPtr(true)
	}
	if c.AutoAssignSensorID.StartingID == 0 {
		c.AutoAssignSensorID.StartingID = idmap.DefaultStartingID
	}
	if c.Database.Directory == "" {
		c.Database.Directory = "data"
	}
	if c.API.Host == "" {
		c.API.Host = "127.0.0.1"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate rejects configurations the gateway could not run with. The
// connection list itself is normalized by the server at startup; here only
// the fields other packages cannot check are verified.
func (c *Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if len(c.Connections) == 0 {
		return fmt.Errorf("%w: at least one connection required", errors.ErrMissingConfig)
	}
	for i, conn := range c.Connections {
		if conn.Type == "" {
			return fmt.Errorf("%w: connection %d has no type", errors.ErrInvalidConfig, i)
		}
		if conn.Port == 0 {
			return fmt.Errorf("%w: connection %d has no port", errors.ErrInvalidConfig, i)
		}
		if conn.ICDVersion != "" {
			if _, err := sapient.ParseVersion(conn.ICDVersion); err != nil {
				return fmt.Errorf("%w: connection %d: %v", errors.ErrInvalidConfig, i, err)
			}
		}
	}
	if _, err := storage.RolloverConfig(c.Rollover).Interval(); err != nil {
		return err
	}
	if _, err := c.ValidationOptions(); err != nil {
		return err
	}
	if c.DetectionFilter.Enable &&
		(c.DetectionFilter.Threshold < 0 || c.DetectionFilter.Threshold > 1) {
		return fmt.Errorf("%w: detection filter threshold %v outside [0, 1]",
			errors.ErrInvalidConfig, c.DetectionFilter.Threshold)
	}
	return nil
}

// SlogLevel maps the configured log level name.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%w: unknown log level %q", errors.ErrInvalidConfig, c.LogLevel)
}

// ConversionEnabled resolves the conversion toggle's default.
func (c *Config) ConversionEnabled() bool {
	return c.EnableMessageConversion == nil || *c.EnableMessageConversion
}

// IDMapOptions builds the identifier registry options, inverting the
// configured ULID-to-legacy table into the registry's orientation.
func (c *Config) IDMapOptions() idmap.Options {
	opts := idmap.Options{StartingID: c.AutoAssignSensorID.StartingID}
	if len(c.AutoAssignSensorID.StaticNodeIDs) > 0 {
		opts.StaticNodes = make(map[int32]string, len(c.AutoAssignSensorID.StaticNodeIDs))
		for u, legacy := range c.AutoAssignSensorID.StaticNodeIDs {
			opts.StaticNodes[legacy] = u
		}
	}
	return opts
}

// GatewayOptions maps the routing-level settings.
func (c *Config) GatewayOptions() gateway.Options {
	return gateway.Options{
		MiddlewareNodeID:      c.MiddlewareID,
		SendRegistrationAck:   c.SendRegistrationAck == nil || *c.SendRegistrationAck,
		AllowPeerRegistration: c.AllowPeerRegistration,
		EnableTimeSync:        c.EnableTimeSyncAdjustment,
		EnableConversion:      c.ConversionEnabled(),
		DetectionFilter: gateway.DetectionFilterOptions{
			Enable:          c.DetectionFilter.Enable,
			Threshold:       c.DetectionFilter.Threshold,
			StoreInDatabase: c.DetectionFilter.StoreInDatabase,
		},
	}
}

// ConnectionSpecs maps the connection list into server specs. Format and
// version defaults are left to the server's normalization.
func (c *Config) ConnectionSpecs() []server.ConnectionSpec {
	specs := make([]server.ConnectionSpec, 0, len(c.Connections))
	for _, conn := range c.Connections {
		version := sapient.VersionUnknown
		if conn.ICDVersion != "" {
			version, _ = sapient.ParseVersion(conn.ICDVersion)
		}
		host := conn.Host
		if host == "" {
			host = "127.0.0.1"
		}
		specs = append(specs, server.ConnectionSpec{
			Type:       conn.Type,
			Format:     gateway.Encoding(strings.ToUpper(conn.Format)),
			Version:    version,
			Host:       host,
			Port:       conn.Port,
			Outbound:   conn.Outbound,
			ForwardAll: conn.ForwardAll,
		})
	}
	return specs
}

// ValidationOptions builds the validator options. An empty type list means
// validation is off, matching the deployed behavior.
func (c *Config) ValidationOptions() (validate.Options, error) {
	defaults := validate.DefaultOptions()
	opts := validate.Options{
		Checks:               map[validate.CheckType]bool{},
		StrictIDFormat:       true,
		MessageTimestampMin:  defaults.MessageTimestampMin,
		MessageTimestampMax:  defaults.MessageTimestampMax,
		DetectionMinimumGap:  defaults.DetectionMinimumGap,
		SupportedICDVersions: defaults.SupportedICDVersions,
	}
	for _, name := range c.Validation.Types {
		check, err := validate.ParseCheckType(name)
		if err != nil {
			return opts, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
		}
		opts.Checks[check] = true
	}
	if c.Validation.StrictIDFormat != nil {
		opts.StrictIDFormat = *c.Validation.StrictIDFormat
	}
	if r := c.Validation.MessageTimestampRange; len(r) > 0 {
		if len(r) != 2 {
			return opts, fmt.Errorf("%w: messageTimestampRange must have two items",
				errors.ErrInvalidConfig)
		}
		opts.MessageTimestampMin = secondsToDuration(r[0])
		opts.MessageTimestampMax = secondsToDuration(r[1])
	}
	if c.Validation.DetectionMinimumGap != nil {
		opts.DetectionMinimumGap = secondsToDuration(*c.Validation.DetectionMinimumGap)
	}
	if len(c.Validation.SupportedICDVersions) > 0 {
		opts.SupportedICDVersions = c.Validation.SupportedICDVersions
	}
	return opts, nil
}

// StorageOptions maps the audit database settings; the initial segment is
// named after the startup time.
func (c *Config) StorageOptions(now time.Time) storage.WriterOptions {
	return storage.WriterOptions{
		Path:              storage.SegmentFilename(c.Database.Directory, now),
		ConversionEnabled: c.ConversionEnabled(),
		Rollover:          storage.RolloverConfig(c.Rollover),
	}
}

func boolPtr(v bool) *bool { return &v }

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
