// Package config loads the runtime's configuration entirely from the
// process environment, matching original_source/kre-py/src/config.py's
// os.environ-only behavior: no CLI flags, no config files.
//
// Called by: cmd/node, cmd/entrypoint
package config

import (
	"fmt"
	"os"
	"strings"
)

// Config holds the environment-derived settings shared by a node runner and
// the entrypoint bridge. Not every field is meaningful to every process:
// NatsSubjectsFile is entrypoint-only, NatsInputs/NatsOutput are node-only.
type Config struct {
	// Bus connection.
	NatsServer     string
	NatsCredsFile  string // optional; original_source-only key, absent from spec.md's distilled list
	NatsStream     string
	NatsInputs     []string
	NatsOutput     string
	NatsSubjectsFile string // entrypoint: maps workflow name -> stream/subject config

	// Identity.
	RunnerName  string
	RuntimeID   string
	KrtVersionID string
	KrtVersion   string
	KrtNodeName  string

	// Handler loading.
	BasePath    string
	HandlerPath string

	// External collaborators (interfaces only; these are connection strings
	// handed to whatever docstore/metrics implementation is wired in).
	MongoURI  string
	InfluxURI string

	// Ambient.
	LogLevel string // zap level name; defaults to "info"
}

// envLookup abstracts os.LookupEnv so tests can supply a fake environment.
type envLookup func(key string) (string, bool)

// Load reads Config from the process environment. It returns an error only
// if one of the keys common to every role (nats_server, runner_name) is
// missing; role-specific keys (e.g. nats_inputs/nats_output for a node) are
// validated by the caller via the Require* helpers below.
func Load() (*Config, error) {
	return load(os.LookupEnv)
}

func load(lookup envLookup) (*Config, error) {
	cfg := &Config{
		NatsServer:       get(lookup, "nats_server"),
		NatsCredsFile:    get(lookup, "nats_creds_file"),
		NatsStream:       get(lookup, "nats_stream"),
		NatsInputs:       getList(lookup, "nats_inputs"),
		NatsOutput:       get(lookup, "nats_output"),
		NatsSubjectsFile: get(lookup, "nats_subjects_file"),
		RunnerName:       get(lookup, "runner_name"),
		RuntimeID:        get(lookup, "runtime_id"),
		KrtVersionID:     get(lookup, "krt_version_id"),
		KrtVersion:       get(lookup, "krt_version"),
		KrtNodeName:      get(lookup, "krt_node_name"),
		BasePath:         get(lookup, "base_path"),
		HandlerPath:      get(lookup, "handler_path"),
		MongoURI:         get(lookup, "mongo_uri"),
		InfluxURI:        get(lookup, "influx_uri"),
		LogLevel:         get(lookup, "log_level"),
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.NatsServer == "" {
		return nil, fmt.Errorf("config: nats_server is required")
	}
	if cfg.RunnerName == "" {
		return nil, fmt.Errorf("config: runner_name is required")
	}
	return cfg, nil
}

// RequireNodeFields validates the keys a node runner needs beyond the
// common set Load() already requires.
func (c *Config) RequireNodeFields() error {
	var missing []string
	if c.NatsStream == "" {
		missing = append(missing, "nats_stream")
	}
	if len(c.NatsInputs) == 0 {
		missing = append(missing, "nats_inputs")
	}
	if c.NatsOutput == "" {
		missing = append(missing, "nats_output")
	}
	if c.HandlerPath == "" {
		missing = append(missing, "handler_path")
	}
	if c.KrtNodeName == "" {
		missing = append(missing, "krt_node_name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required node keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RequireEntrypointFields validates the keys the entrypoint bridge needs
// beyond the common set Load() already requires.
func (c *Config) RequireEntrypointFields() error {
	if c.NatsSubjectsFile == "" {
		return fmt.Errorf("config: missing required entrypoint key: nats_subjects_file")
	}
	return nil
}

// OutputSubject returns the node's configured output subject, suffixed by
// channel when channel is non-empty, per spec.md §6: "nats_output" or
// "nats_output + '.' + channel".
func (c *Config) OutputSubject(channel string) string {
	if channel == "" {
		return c.NatsOutput
	}
	return c.NatsOutput + "." + channel
}

func get(lookup envLookup, key string) string {
	v, _ := lookup(key)
	return v
}

// getList splits a comma-separated environment value into its list form,
// matching how original_source's NodeRunner reads nats_inputs as a list.
func getList(lookup envLookup, key string) []string {
	raw, ok := lookup(key)
	if !ok || raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
