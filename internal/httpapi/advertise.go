package httpapi

import (
	"fmt"
	"log/slog"

	"github.com/grandcat/zeroconf"

	"github.com/hergott/ai-words-assistant/internal/protocol"
)

// mDNS service parameters.
const (
	ServiceType   = "_aiwords._tcp"
	ServiceDomain = "local."
)

// Advertise announces the server on the local network and returns a function
// that withdraws the announcement.
func Advertise(name string, port int, logger *slog.Logger) (func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	txt := []string{"path=" + protocol.DefaultPath, "board=/api/board"}
	server, err := zeroconf.Register(name, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	logger.Info("mdns advertised", "component", "httpapi", "name", name, "service", ServiceType, "port", port)
	return server.Shutdown, nil
}
