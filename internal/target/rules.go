package target

import (
	"github.com/tridentframe/launcher/internal/domain"
)

// DevelopmentRule runs the backend script through the interpreter on any platform.
type DevelopmentRule struct{}

func (DevelopmentRule) ID() string { return "development" }

func (DevelopmentRule) Description() string {
	return "interpreter running the backend script, port as last argument"
}

func (DevelopmentRule) Matches(mode domain.DeploymentMode, _ domain.Platform) bool {
	return mode == domain.ModeDevelopment
}

func (r DevelopmentRule) Build(layout Layout, port domain.PortAssignment) domain.BackendTarget {
	return domain.BackendTarget{
		Executable: layout.Interpreter,
		Args:       []string{layout.Path(layout.DevScript), port.String()},
		WorkDir:    layout.AppDir,
		Mode:       domain.ModeDevelopment,
		Rule:       r.ID(),
	}
}

// WindowsReleaseRule runs the packaged Windows executable.
type WindowsReleaseRule struct{}

func (WindowsReleaseRule) ID() string { return "windows-release" }

func (WindowsReleaseRule) Description() string {
	return "packaged Windows backend executable"
}

func (WindowsReleaseRule) Matches(mode domain.DeploymentMode, platform domain.Platform) bool {
	return mode == domain.ModeProduction && platform == domain.PlatformWindows
}

func (r WindowsReleaseRule) Build(layout Layout, port domain.PortAssignment) domain.BackendTarget {
	return domain.BackendTarget{
		Executable: layout.Path(layout.WindowsExecutable),
		Args:       layout.productionArgs(port),
		WorkDir:    layout.AppDir,
		Mode:       domain.ModeProduction,
		Platform:   domain.PlatformWindows,
		Rule:       r.ID(),
	}
}

// LinuxReleaseRule runs the packaged Linux executable.
type LinuxReleaseRule struct{}

func (LinuxReleaseRule) ID() string { return "linux-release" }

func (LinuxReleaseRule) Description() string {
	return "packaged Linux backend executable"
}

func (LinuxReleaseRule) Matches(mode domain.DeploymentMode, platform domain.Platform) bool {
	return mode == domain.ModeProduction && platform == domain.PlatformLinux
}

func (r LinuxReleaseRule) Build(layout Layout, port domain.PortAssignment) domain.BackendTarget {
	return domain.BackendTarget{
		Executable: layout.Path(layout.LinuxExecutable),
		Args:       layout.productionArgs(port),
		WorkDir:    layout.AppDir,
		Mode:       domain.ModeProduction,
		Platform:   domain.PlatformLinux,
		Rule:       r.ID(),
	}
}

var (
	_ Rule = DevelopmentRule{}
	_ Rule = WindowsReleaseRule{}
	_ Rule = LinuxReleaseRule{}
)
