// Package config provides centralized configuration management for the
// forgemcpd runtime. Configuration is loaded from a JSON file, with a small
// set of environment variable overrides such as PROJECT_ROOT, and sensible
// defaults applied for anything left unset.
package config
