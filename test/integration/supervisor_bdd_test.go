//go:build integration

package integration

import (
	"context"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/tridentframe/launcher/internal/domain"
	"github.com/tridentframe/launcher/internal/infra"
	"github.com/tridentframe/launcher/internal/readiness"
	"github.com/tridentframe/launcher/internal/target"
	"github.com/tridentframe/launcher/internal/usecase"
	"github.com/tridentframe/launcher/test/fixtures"
)

func useBackendMode(mode fixtures.Mode) {
	Expect(os.Setenv(fixtures.BackendModeEnv, string(mode))).To(Succeed())
	DeferCleanup(os.Unsetenv, fixtures.BackendModeEnv)
}

func freePort() domain.PortAssignment {
	port, err := infra.FreePortAllocator{}.Allocate()
	Expect(err).NotTo(HaveOccurred())
	return port
}

var _ = Describe("Backend Supervisor", func() {
	var (
		install    *fixtures.Install
		pm         domain.ProcessManager
		supervisor *usecase.Supervisor
		config     usecase.SupervisorConfig
		port       domain.PortAssignment

		exitMu sync.Mutex
		exits  []domain.BackendExit
	)

	newSupervisor := func() *usecase.Supervisor {
		return usecase.NewSupervisor(
			config,
			infra.FixedPortAllocator{Port: port.Port},
			target.NewMatrix(target.DefaultLayout(install.Dir)),
			infra.NewSpawner(infra.DefaultPortEnv, zap.NewNop()),
			pm,
			zap.NewNop(),
			usecase.WithProber(readiness.TCPProber{DialTimeout: 200 * time.Millisecond}),
			usecase.WithExitObserver(func(exit domain.BackendExit) {
				exitMu.Lock()
				defer exitMu.Unlock()
				exits = append(exits, exit)
			}),
		)
	}

	observedExits := func() []domain.BackendExit {
		exitMu.Lock()
		defer exitMu.Unlock()
		return append([]domain.BackendExit(nil), exits...)
	}

	BeforeEach(func() {
		var err error
		install, err = fixtures.NewInstall(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		pm = infra.NewProcessManager()
		port = freePort()
		config = usecase.DefaultSupervisorConfig(domain.ModeProduction, domain.PlatformLinux)
		config.StopTimeout = 500 * time.Millisecond
		config.KillGrace = 2 * time.Second
		config.ReadinessInterval = 20 * time.Millisecond
		config.ReadinessTimeout = 5 * time.Second

		exitMu.Lock()
		exits = nil
		exitMu.Unlock()

		supervisor = newSupervisor()
		DeferCleanup(func() { _ = supervisor.Stop(context.Background()) })
	})

	Describe("Launch", func() {
		Context("when the packaged backend binds its port", func() {
			BeforeEach(func() { useBackendMode(fixtures.ModeServe) })

			It("should become ready and stop gracefully", func() {
				proc, err := supervisor.Launch(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(proc.Target.Executable).To(Equal(install.Backend()))
				Expect(proc.Target.Args).To(BeEmpty())
				Expect(supervisor.State()).To(Equal(domain.StateRunning))

				Eventually(supervisor.Ready(), 5*time.Second).Should(BeClosed())

				start := time.Now()
				Expect(supervisor.Stop(context.Background())).To(Succeed())
				Expect(time.Since(start)).To(BeNumerically("<", config.StopTimeout))
				Expect(supervisor.State()).To(Equal(domain.StateStopped))
				Eventually(func() bool { return pm.IsRunning(proc.PID) }, 2*time.Second).Should(BeFalse())
				Expect(observedExits()).To(BeEmpty())
			})

			It("should start a fresh run after stopping", func() {
				first, err := supervisor.Launch(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(supervisor.Stop(context.Background())).To(Succeed())

				second, err := supervisor.Launch(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(second.RunID).NotTo(Equal(first.RunID))
				Expect(second.PID).NotTo(Equal(first.PID))
				Eventually(supervisor.Ready(), 5*time.Second).Should(BeClosed())
			})
		})

		Context("when the backend ignores SIGTERM", func() {
			BeforeEach(func() { useBackendMode(fixtures.ModeStubborn) })

			It("should force-kill after the stop timeout", func() {
				proc, err := supervisor.Launch(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Eventually(supervisor.Ready(), 5*time.Second).Should(BeClosed())

				start := time.Now()
				Expect(supervisor.Stop(context.Background())).To(Succeed())
				Expect(time.Since(start)).To(BeNumerically(">=", config.StopTimeout))

				Eventually(func() bool { return pm.IsRunning(proc.PID) }, 2*time.Second).Should(BeFalse())
				Expect(supervisor.State()).To(Equal(domain.StateStopped))
			})
		})

		Context("when the backend crashes", func() {
			BeforeEach(func() { useBackendMode(fixtures.ModeCrash) })

			It("should report the exit without restarting", func() {
				proc, err := supervisor.Launch(context.Background())
				Expect(err).NotTo(HaveOccurred())

				Eventually(observedExits, 5*time.Second).Should(HaveLen(1))
				exit := observedExits()[0]
				Expect(exit.PID).To(Equal(proc.PID))
				Expect(exit.ExitCode).To(Equal(fixtures.CrashExitCode))
				Expect(exit.Expected).To(BeFalse())

				Expect(supervisor.State()).To(Equal(domain.StateStopped))
				_, running := supervisor.Current()
				Expect(running).To(BeFalse())
				Consistently(observedExits, 300*time.Millisecond).Should(HaveLen(1))
			})
		})

		Context("when the packaged backend is missing", func() {
			It("should fail with LAUNCH_FAILED and stay stopped", func() {
				Expect(os.Remove(install.Backend())).To(Succeed())

				_, err := supervisor.Launch(context.Background())
				Expect(err).To(MatchError(domain.ErrLaunchFailed))
				Expect(supervisor.State()).To(Equal(domain.StateStopped))
				Expect(supervisor.Stop(context.Background())).To(Succeed())
			})
		})
	})
})
