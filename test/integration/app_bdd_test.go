//go:build integration

package integration

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/tridentframe/launcher/internal/app"
	"github.com/tridentframe/launcher/internal/config"
	"github.com/tridentframe/launcher/internal/desktop"
	"github.com/tridentframe/launcher/internal/domain"
	"github.com/tridentframe/launcher/internal/infra"
	"github.com/tridentframe/launcher/internal/lifecycle"
	"github.com/tridentframe/launcher/test/fixtures"
)

var _ = Describe("Headless launcher", func() {
	var (
		install *fixtures.Install
		cfg     config.Config
		surface *desktop.HeadlessSurface
		a       *app.App
		errc    chan error
	)

	BeforeEach(func() {
		var err error
		install, err = fixtures.NewInstall(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		useBackendMode(fixtures.ModeServe)

		cfg = config.Default()
		cfg.AppDir = install.Dir
		cfg.Backend.Port = freePort().Port
		cfg.Backend.StopTimeout = config.Duration{Duration: time.Second}
		cfg.Readiness.Interval = config.Duration{Duration: 20 * time.Millisecond}
		Expect(cfg.Validate()).To(Succeed())

		a = app.New(cfg, func(bus *lifecycle.Bus, _ domain.WindowSpec) domain.Surface {
			surface = desktop.NewHeadlessSurface(bus, zap.NewNop())
			return surface
		}, zap.NewNop(), app.WithGOOS("linux"))

		errc = make(chan error, 1)
		go func() { errc <- a.Run(context.Background()) }()
	})

	It("should load the packaged content once the backend is ready and clean up on quit", func() {
		Eventually(func() domain.SupervisorState { return a.Supervisor().State() }, 5*time.Second).
			Should(Equal(domain.StateRunning))
		proc, ok := a.Supervisor().Current()
		Expect(ok).To(BeTrue())

		Eventually(surface.Windows, 5*time.Second).Should(HaveLen(1))
		win := surface.Windows()[0]
		Eventually(func() string {
			src, _ := surface.Content(win)
			return src.URL()
		}, 5*time.Second).Should(Equal("file://" + install.Content()))

		surface.Close(win)
		Eventually(errc, 5*time.Second).Should(Receive(BeNil()))

		Expect(a.Supervisor().State()).To(Equal(domain.StateStopped))
		pm := infra.NewProcessManager()
		Eventually(func() bool { return pm.IsRunning(proc.PID) }, 2*time.Second).Should(BeFalse())

		_, listening, err := pm.ListenerPID(cfg.Backend.Port)
		Expect(err).NotTo(HaveOccurred())
		Expect(listening).To(BeFalse())
	})
})
