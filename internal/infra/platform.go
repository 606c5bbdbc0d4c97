package infra

import (
	"fmt"
	"runtime"

	"github.com/tridentframe/launcher/internal/domain"
)

// HostInfo is what the launcher knows about where it is running.
type HostInfo struct {
	GOOS     string // raw runtime.GOOS, used by the residency policy
	Platform domain.Platform
	Mode     domain.DeploymentMode
	AppDir   string
}

// DetectHost classifies the current OS. The mode comes from configuration.
func DetectHost(mode domain.DeploymentMode, appDir string) HostInfo {
	return HostInfo{
		GOOS:     runtime.GOOS,
		Platform: domain.PlatformFromGOOS(runtime.GOOS),
		Mode:     mode,
		AppDir:   appDir,
	}
}

// String returns a human-readable description of the host.
func (h HostInfo) String() string {
	return fmt.Sprintf("%s (%s), %s mode", h.Platform, h.GOOS, h.Mode)
}
