// Package domain contains the launcher's core entities and interfaces.
// This is the innermost layer - no dependencies on other internal packages.
package domain

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// DeploymentMode selects development or packaged launch behaviour.
type DeploymentMode string

const (
	ModeDevelopment DeploymentMode = "development"
	ModeProduction  DeploymentMode = "production"
)

// DevelopmentEnvValue is the only DEPLOY_ENV value that selects development mode.
const DevelopmentEnvValue = "DEV"

// ParseDeploymentMode maps the DEPLOY_ENV value to a mode.
// Anything other than the exact string "DEV" is production.
func ParseDeploymentMode(env string) DeploymentMode {
	if env == DevelopmentEnvValue {
		return ModeDevelopment
	}
	return ModeProduction
}

// ParseModeFlag accepts the short CLI spellings ("dev", "prod") and the full names.
func ParseModeFlag(s string) (DeploymentMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development":
		return ModeDevelopment, nil
	case "prod", "production":
		return ModeProduction, nil
	default:
		return "", fmt.Errorf("unknown deployment mode %q", s)
	}
}

// Platform is the host OS family as far as backend packaging is concerned.
type Platform string

const (
	PlatformWindows Platform = "windows"
	PlatformLinux   Platform = "linux"
	PlatformOther   Platform = "other"
)

// PlatformFromGOOS classifies a runtime.GOOS value.
func PlatformFromGOOS(goos string) Platform {
	switch goos {
	case "windows":
		return PlatformWindows
	case "linux":
		return PlatformLinux
	default:
		return PlatformOther
	}
}

// ParsePlatformFlag accepts a platform name or any GOOS value.
func ParsePlatformFlag(s string) Platform {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == string(PlatformOther) {
		return PlatformOther
	}
	return PlatformFromGOOS(s)
}

// BackendTarget is the executable and arguments to launch.
// It is derived from mode and platform on demand and never persisted.
type BackendTarget struct {
	Executable string
	Args       []string
	WorkDir    string
	Mode       DeploymentMode
	Platform   Platform
	Rule       string // ID of the rule that produced this target
}

// IsZero reports whether the target is unresolved.
func (t BackendTarget) IsZero() bool {
	return t.Executable == ""
}

// CommandLine renders the target for logs and the CLI.
func (t BackendTarget) CommandLine() string {
	if len(t.Args) == 0 {
		return t.Executable
	}
	return t.Executable + " " + strings.Join(t.Args, " ")
}

// PortAssignment is the TCP port the backend listens on for one run.
type PortAssignment struct {
	Port int
}

// DefaultBackendPort is the fixed port policy.
const DefaultBackendPort = 4242

func (p PortAssignment) String() string {
	return strconv.Itoa(p.Port)
}

// Addr returns the loopback address of the port.
func (p PortAssignment) Addr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(p.Port))
}

// IsZero reports whether no port has been assigned.
func (p PortAssignment) IsZero() bool {
	return p.Port == 0
}

// SupervisorState is the per-run backend lifecycle state.
type SupervisorState string

const (
	StateNotStarted SupervisorState = "not_started"
	StateStarting   SupervisorState = "starting"
	StateRunning    SupervisorState = "running"
	StateStopped    SupervisorState = "stopped"
)

// SupervisedProcess is a snapshot of the live backend handle.
type SupervisedProcess struct {
	RunID     string
	PID       int
	Target    BackendTarget
	Port      PortAssignment
	StartedAt time.Time
}

// BackendExit describes how a backend run ended.
type BackendExit struct {
	RunID    string
	PID      int
	ExitCode int
	Err      error
	Expected bool // true when the exit was requested by Stop
	ExitedAt time.Time
}

// WindowHandle identifies a window created by a Surface.
type WindowHandle string

// WindowSpec describes the single application window.
type WindowSpec struct {
	Title     string
	Width     int
	Height    int
	Resizable bool
	Centered  bool
	Frameless bool
	Menu      bool
	DarkTheme bool
	IconPath  string
	DevTools  bool
}

// ContentKind distinguishes a served URL from a packaged file.
type ContentKind string

const (
	ContentURL  ContentKind = "url"
	ContentFile ContentKind = "file"
)

// ContentSource is what the window displays.
type ContentSource struct {
	Kind     ContentKind
	Location string
}

// URL returns the location in URL form.
func (c ContentSource) URL() string {
	if c.Kind == ContentFile {
		return "file://" + c.Location
	}
	return c.Location
}
