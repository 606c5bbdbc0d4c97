// Package target implements the Strategy pattern for backend launch targets.
// Each (mode, platform) combination that ships a backend has its own rule
// describing what executable to run and with which arguments.
package target

import (
	"path/filepath"

	"github.com/tridentframe/launcher/internal/domain"
)

// Rule defines how one packaging variant launches the backend.
type Rule interface {
	// ID returns a unique identifier (e.g., "development", "windows-release").
	ID() string

	// Description returns a human-readable summary for the CLI.
	Description() string

	// Matches reports whether this rule handles the mode/platform pair.
	Matches(mode domain.DeploymentMode, platform domain.Platform) bool

	// Build produces the launch target. It must not touch the filesystem.
	Build(layout Layout, port domain.PortAssignment) domain.BackendTarget
}

// Layout is where the launcher finds the backend relative to its install dir.
type Layout struct {
	AppDir               string
	Interpreter          string
	DevScript            string
	WindowsExecutable    string
	LinuxExecutable      string
	PassPortInProduction bool
}

// DefaultLayout returns the packaged layout rooted at appDir.
func DefaultLayout(appDir string) Layout {
	return Layout{
		AppDir:            appDir,
		Interpreter:       "python",
		DevScript:         "main.py",
		WindowsExecutable: filepath.Join("dist", "tridentframe_win", "main.exe"),
		LinuxExecutable:   filepath.Join("release", "tridentframe_linux", "main"),
	}
}

// Path joins a relative layout path onto AppDir. Absolute paths pass through.
func (l Layout) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(l.AppDir, p)
}

// productionArgs honours the port-passing switch for packaged builds.
func (l Layout) productionArgs(port domain.PortAssignment) []string {
	if l.PassPortInProduction && !port.IsZero() {
		return []string{port.String()}
	}
	return nil
}
