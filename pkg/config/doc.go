// Package config handles configuration management for treetx.
// It layers the embedded defaults, the tree's own config.toml and
// TREETX_* environment variables, in that order.
package config
