// Package config defines the gateway configuration model, the YAML
// loader with environment variable substitution, startup validation,
// and a file watcher for hot reload.
package config
