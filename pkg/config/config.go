package config

import (
	"fmt"
	"time"
)

// Orphan policies understood by the transform.
const (
	OrphanPolicyConflict = "conflict"
	OrphanPolicyMove     = "move"
)

// Config is the effective treetx configuration.
type Config struct {
	Transform Transform `koanf:"transform"`
	Tree      Tree      `koanf:"tree"`
	Logging   Logging   `koanf:"logging"`
}

// Transform holds staging and apply behaviour.
type Transform struct {
	// CaseSensitive is "auto", "true" or "false".
	CaseSensitive string `koanf:"case_sensitive"`
	DirectPaths   bool   `koanf:"direct_paths"`
	OrphanPolicy  string `koanf:"orphan_policy"`
	OrphanDir     string `koanf:"orphan_dir"`
}

// Tree holds working tree layout settings.
type Tree struct {
	ControlDir  string        `koanf:"control_dir"`
	LockTimeout time.Duration `koanf:"lock_timeout"`
}

// Logging holds the default verbosity used when no -v flag is given.
type Logging struct {
	Verbosity int `koanf:"verbosity"`
}

// CaseSensitiveTarget resolves the case sensitivity setting against what the
// underlying filesystem reports.
func (c *Config) CaseSensitiveTarget(fsCaseSensitive bool) bool {
	switch c.Transform.CaseSensitive {
	case "true":
		return true
	case "false":
		return false
	default:
		return fsCaseSensitive
	}
}

// Validate checks value ranges that the decoder cannot express.
func (c *Config) Validate() error {
	switch c.Transform.CaseSensitive {
	case "auto", "true", "false":
	default:
		return fmt.Errorf("transform.case_sensitive must be auto, true or false, got %q", c.Transform.CaseSensitive)
	}
	switch c.Transform.OrphanPolicy {
	case OrphanPolicyConflict, OrphanPolicyMove:
	default:
		return fmt.Errorf("transform.orphan_policy must be %s or %s, got %q",
			OrphanPolicyConflict, OrphanPolicyMove, c.Transform.OrphanPolicy)
	}
	if c.Transform.OrphanDir == "" {
		return fmt.Errorf("transform.orphan_dir must not be empty")
	}
	if c.Tree.ControlDir == "" {
		return fmt.Errorf("tree.control_dir must not be empty")
	}
	if c.Tree.LockTimeout < 0 {
		return fmt.Errorf("tree.lock_timeout must not be negative")
	}
	return nil
}

// toMap renders the config in the same shape as the TOML files.
func (c *Config) toMap() map[string]interface{} {
	return map[string]interface{}{
		"transform": map[string]interface{}{
			"case_sensitive": c.Transform.CaseSensitive,
			"direct_paths":   c.Transform.DirectPaths,
			"orphan_policy":  c.Transform.OrphanPolicy,
			"orphan_dir":     c.Transform.OrphanDir,
		},
		"tree": map[string]interface{}{
			"control_dir":  c.Tree.ControlDir,
			"lock_timeout": c.Tree.LockTimeout.String(),
		},
		"logging": map[string]interface{}{
			"verbosity": c.Logging.Verbosity,
		},
	}
}
