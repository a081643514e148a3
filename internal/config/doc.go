// Package config loads and merges local-brain configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (OLLAMA_HOST, LOCAL_BRAIN_TIMEOUT, LOCAL_BRAIN_FORMAT, etc.)
//  3. Config file ($XDG_CONFIG_HOME/local-brain/config.toml, or LOCAL_BRAIN_CONFIG)
//  4. Built-in defaults
//
// MODEL_NAME is not merged here. It is one of the model selector's own
// sources and is read by the CLI.
//
// Use [Load] to obtain a merged [Config], [Save] to write a config file, and
// [SetField] to update a single key.
package config
