package cli

import (
	"os"
	"path/filepath"
)

// Paths locates the files of an app under ~/.brokerdial.
type Paths struct {
	AppName string
	HomeDir string
}

// NewPaths returns the Paths of appName for the current user.
func NewPaths(appName string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{AppName: appName, HomeDir: home}, nil
}

// BaseDir is ~/.brokerdial.
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// AppDir is ~/.brokerdial/<app>.
func (p *Paths) AppDir() string {
	return filepath.Join(p.BaseDir(), p.AppName)
}

// ConfigFile is ~/.brokerdial/<app>/config.yaml.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.AppDir(), DefaultConfigFile)
}

// LogDir is ~/.brokerdial/<app>/logs.
func (p *Paths) LogDir() string {
	return filepath.Join(p.AppDir(), "logs")
}

// DataDir returns the data directory of a context: its DataDir when set,
// otherwise ~/.brokerdial/<app>/data/<context>.
func (p *Paths) DataDir(ctx *Context) string {
	if ctx != nil && ctx.DataDir != "" {
		return ctx.DataDir
	}
	name := "default"
	if ctx != nil && ctx.Name != "" {
		name = ctx.Name
	}
	return filepath.Join(p.AppDir(), "data", name)
}

// DBDir is where the CRM key-value database lives.
func (p *Paths) DBDir(ctx *Context) string {
	return filepath.Join(p.DataDir(ctx), "db")
}

// FilesDir is where recordings are kept when no bucket is configured.
func (p *Paths) FilesDir(ctx *Context) string {
	return filepath.Join(p.DataDir(ctx), "files")
}

// EnsureDataDir creates the data directory of ctx.
func (p *Paths) EnsureDataDir(ctx *Context) error {
	return os.MkdirAll(p.DataDir(ctx), 0o755)
}

// EnsureLogDir creates the log directory.
func (p *Paths) EnsureLogDir() error {
	return os.MkdirAll(p.LogDir(), 0o755)
}

// LogPath returns a file in the log directory.
func (p *Paths) LogPath(name string) string {
	return filepath.Join(p.LogDir(), name)
}
