package config

import (
	"path/filepath"

	"github.com/projecteru2/scopelock/types"
	"github.com/projecteru2/scopelock/utils"
)

// EnsureDirs creates the static directories used by the CLI.
func (c *Config) EnsureDirs() error {
	return utils.EnsureDirs(c.dbDir(), c.LockDir())
}

func (c *Config) dbDir() string { return filepath.Join(c.RootDir, "db") }

// HoldersFile and HoldersLock are the holder registry store paths.
func (c *Config) HoldersFile() string { return filepath.Join(c.dbDir(), "holders.json") }
func (c *Config) HoldersLock() string { return filepath.Join(c.dbDir(), "holders.lock") }

// LockDir holds one lock file per scope.
func (c *Config) LockDir() string { return filepath.Join(c.RunDir, "locks") }

// LockGate is taken shared while acquiring a scope lock file and exclusive
// by GC while removing them.
func (c *Config) LockGate() string { return c.LockDir() + LockSuffix }

// LockFile returns the lock file guarding scope.
func (c *Config) LockFile(scope []string) string {
	return filepath.Join(c.LockDir(), types.ScopeID(scope)+LockSuffix)
}

// LockSuffix is the file extension of per-scope lock files.
const LockSuffix = ".lock"
