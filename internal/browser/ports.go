package browser

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
)

const (
	MinPortRange = 9222 // Chrome's default debug port
	MaxPortRange = 9272
)

// PortPool hands out debug ports from a fixed range
type PortPool struct {
	min, max int

	mu   sync.Mutex
	free []int
	used map[int]bool

	// available reports whether nothing else is listening on port
	available func(port int) bool
}

// NewPortPool creates a pool over [min, max)
func NewPortPool(min, max int) *PortPool {
	p := &PortPool{
		min:       min,
		max:       max,
		used:      make(map[int]bool),
		available: isPortAvailable,
	}
	// lowest port is handed out first
	for port := max - 1; port >= min; port-- {
		p.free = append(p.free, port)
	}
	return p
}

var defaultPool = NewPortPool(MinPortRange, MaxPortRange)

// isPortAvailable checks if a port is available by attempting to listen on it
func isPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// Acquire returns a port nobody is listening on. Ports taken by other
// processes are skipped and stay out of the pool.
func (p *PortPool) Acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.free) > 0 {
		port := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]

		if p.available(port) {
			p.used[port] = true
			slog.Debug("allocated debug port", "port", port, "remaining", len(p.free))
			return port, nil
		}
		slog.Debug("port in use by external process", "port", port)
	}

	return 0, fmt.Errorf("no free ports available in %d-%d", p.min, p.max-1)
}

// Release returns port to the pool
func (p *PortPool) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if port < p.min || port >= p.max {
		slog.Warn("attempted to return invalid port", "port", port)
		return
	}
	if !p.used[port] {
		slog.Warn("port not allocated, ignoring return", "port", port)
		return
	}

	delete(p.used, port)
	p.free = append(p.free, port)
}

// Stats returns the pool size and how many ports are still free
func (p *PortPool) Stats() (total, available int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.max - p.min, len(p.free)
}
