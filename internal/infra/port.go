package infra

import (
	"fmt"
	"net"

	"github.com/tridentframe/launcher/internal/domain"
)

// FixedPortAllocator always hands out the same port. Nothing checks that
// it is free.
type FixedPortAllocator struct {
	Port int
}

// Allocate returns the configured port.
func (a FixedPortAllocator) Allocate() (domain.PortAssignment, error) {
	if a.Port <= 0 || a.Port > 65535 {
		return domain.PortAssignment{}, domain.NewError(domain.CodeInvalidPort, "port out of range").
			WithContext("port", a.Port)
	}
	return domain.PortAssignment{Port: a.Port}, nil
}

// FreePortAllocator asks the OS for an unused loopback port. The port is
// released before the backend binds it, so another process may win the race.
type FreePortAllocator struct{}

// Allocate binds 127.0.0.1:0, reads the port and closes the listener.
func (FreePortAllocator) Allocate() (domain.PortAssignment, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return domain.PortAssignment{}, fmt.Errorf("find free port: %w", err)
	}
	defer l.Close()

	return domain.PortAssignment{Port: l.Addr().(*net.TCPAddr).Port}, nil
}

var (
	_ domain.PortAllocator = FixedPortAllocator{}
	_ domain.PortAllocator = FreePortAllocator{}
)
