package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Hierarchy.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if _, err := d.Dialect(); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.driver",
			Message: fmt.Sprintf("unsupported driver %q", d.Driver),
			Hint:    "valid values are: mysql, pgx, postgres, sqlite",
		})
		return
	}

	driver := d.DriverName()

	if driver != DriverSQLite && d.ConnectionString == "" && (d.Port < 1 || d.Port > 65535) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port),
		})
	}

	if driver == DriverMySQL && d.ConnectionString != "" {
		if _, err := d.EffectiveDatabaseName(); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.dsn",
				Message: err.Error(),
				Hint:    "set a valid MySQL DSN in database.dsn/database.dsn_file",
			})
		}
	}

	if driver == DriverSQLite && d.Pool.MaxOpen != 1 && d.sqliteDSN() == ":memory:" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.pool.max_open",
			Message: "in-memory sqlite databases are per connection",
			Hint:    "the pool is limited to one connection for :memory:",
		})
	}

	d.TLS.validate(driver, result)

	if d.Pool.MaxOpen < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_open",
			Message: "max_open cannot be negative",
		})
	}
	if d.Pool.MaxIdle < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_idle",
			Message: "max_idle cannot be negative",
		})
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.pool.max_idle",
			Message: "max_idle is greater than max_open",
			Hint:    "idle connections will be limited to max_open",
		})
	}

	if d.ConnectionTimeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_timeout",
			Message: "connection_timeout cannot be negative",
		})
	}
	if d.ConnectionRetryInterval < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_retry_interval",
			Message: "connection_retry_interval cannot be negative",
		})
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_retry_interval",
			Message: "connection_retry_interval must be greater than 0 when connection_timeout is set",
			Hint:    "set a retry interval such as 2s, or set connection_timeout to 0 to disable retries",
		})
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.connection_retry_interval",
			Message: "connection_retry_interval is greater than connection_timeout",
			Hint:    "only one connection attempt will be made",
		})
	}
}

func (t *DatabaseTLSConfig) validate(driver string, result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.mode",
			Message: fmt.Sprintf("invalid TLS mode %q", t.Mode),
			Hint:    "valid values are: off, skip-verify, verify-ca, verify-full",
		})
		return
	}

	if driver == DriverSQLite && t.Mode != "" && t.Mode != "off" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.tls.mode",
			Message: "TLS settings are ignored for sqlite",
		})
	}

	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.tls.ca_file",
			Message: fmt.Sprintf("TLS mode %q without a CA file uses the system trust store", t.Mode),
		})
	}

	if (t.CertFile == "") != (t.KeyFile == "") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.cert_file",
			Message: "cert_file and key_file must be set together",
		})
	}
}

func (h *HierarchyConfig) validate(result *ValidationResult) {
	before := len(result.Errors)
	if strings.TrimSpace(h.Table) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "hierarchy.table",
			Message: "table is required",
			Hint:    "set hierarchy.table or TIHIER_HIERARCHY_TABLE",
		})
	}
	if strings.TrimSpace(h.KeyColumn) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "hierarchy.key_column",
			Message: "key_column is required",
		})
	}

	if h.EdgeTable == "" {
		if strings.TrimSpace(h.ParentColumn) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "hierarchy.parent_column",
				Message: "parent_column is required without an edge table",
			})
		}
		if h.EdgeChildColumn != "" || h.EdgeParentColumn != "" {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "hierarchy.edge_table",
				Message: "edge columns are set but edge_table is empty",
				Hint:    "the parent_column of the node table is used",
			})
		}
	} else if h.EdgeChildColumn == "" || h.EdgeParentColumn == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "hierarchy.edge_table",
			Message: "edge_table requires edge_child_column and edge_parent_column",
		})
	}

	if h.MaxDepth < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "hierarchy.max_depth",
			Message: "max_depth cannot be negative",
			Hint:    "use 0 for an unbounded traversal",
		})
	}
	if h.MaxBatchSize < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "hierarchy.max_batch_size",
			Message: "max_batch_size cannot be negative",
		})
	}

	// Remaining structural checks (projection must carry the key, traversal
	// column collisions) are shared with the relation definition.
	if len(result.Errors) == before {
		if err := h.Definition().Validate(); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "hierarchy",
				Message: err.Error(),
			})
		}
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port),
		})
	}

	timeouts := []struct {
		field string
		value int64
	}{
		{"server.read_timeout", int64(s.ReadTimeout)},
		{"server.write_timeout", int64(s.WriteTimeout)},
		{"server.idle_timeout", int64(s.IdleTimeout)},
		{"server.shutdown_timeout", int64(s.ShutdownTimeout)},
		{"server.health_check_timeout", int64(s.HealthCheckTimeout)},
	}
	for _, timeout := range timeouts {
		if timeout.value < 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   timeout.field,
				Message: "timeout cannot be negative",
			})
		}
	}

	if s.GraphiQLEnabled {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "server.graphiql_enabled",
			Message: "GraphiQL is enabled",
			Hint:    "disable GraphiQL outside development",
		})
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("invalid log level %q", o.Logging.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("invalid log format %q", o.Logging.Format),
			Hint:    "valid values are: json, text",
		})
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("trace_sample_ratio %v is out of range", o.TraceSampleRatio),
			Hint:    "use a value from 0.0 to 1.0",
		})
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			Hint:    "valid values are: grpc, http/protobuf",
		})
	}

	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".endpoint",
			Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			Hint:    "use host:port or a full URL",
		})
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}

	if o.RetryMaxAttempts < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".retry_max_attempts",
			Message: "retry_max_attempts cannot be negative",
		})
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
