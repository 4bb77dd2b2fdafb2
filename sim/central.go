// Package sim is an in-memory stand-in for the radio stack. Tests and the
// demo binary drive the SDK against simulated peripherals with injectable
// latency and failures instead of real hardware.
package sim

import (
	"sync"
	"time"

	"github.com/somatic-tech/zorbgo/logger"
	"github.com/somatic-tech/zorbgo/transport"
)

// discoveryInterval is how often an active scan re-checks the registered
// peripherals, mirroring advertisement intervals on a real link.
const discoveryInterval = 10 * time.Millisecond

var (
	_ transport.Central    = (*Central)(nil)
	_ transport.Peripheral = (*Peripheral)(nil)
)

// Central is the simulated radio stack. Peripherals registered on it become
// discoverable by scans and retrievable by identifier.
type Central struct {
	mu          sync.Mutex
	peripherals []*Peripheral
	scanErr     error
}

// NewCentral creates an empty simulated radio stack.
func NewCentral() *Central {
	return &Central{}
}

// Add registers a peripheral, making it visible to scans.
func (c *Central) Add(p *Peripheral) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peripherals = append(c.peripherals, p)
}

// SetScanError makes every subsequent scan fail with err.
func (c *Central) SetScanError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scanErr = err
}

func (c *Central) RetrievePeripheral(identifier string) (transport.Peripheral, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.peripherals {
		if p.id == identifier {
			return p, true
		}
	}
	return nil, false
}

func (c *Central) ConnectedPeripherals(serviceUUIDs []string) []transport.Peripheral {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []transport.Peripheral
	for _, p := range c.peripherals {
		if p.Connected() && p.advertisesAll(serviceUUIDs) {
			out = append(out, p)
		}
	}
	return out
}

func (c *Central) Scan(serviceUUIDs []string, found func(transport.Peripheral), failed func(error)) func() {
	c.mu.Lock()
	scanErr := c.scanErr
	c.mu.Unlock()

	stopChan := make(chan struct{})
	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() { close(stopChan) })
	}

	if scanErr != nil {
		go failed(scanErr)
		return stop
	}

	logger.Trace("sim", "scan started (services=%v)", serviceUUIDs)

	go func() {
		ticker := time.NewTicker(discoveryInterval)
		defer ticker.Stop()

		reported := make(map[string]bool)
		for {
			select {
			case <-stopChan:
				logger.Trace("sim", "scan stopped")
				return
			case <-ticker.C:
				c.mu.Lock()
				candidates := append([]*Peripheral{}, c.peripherals...)
				c.mu.Unlock()

				for _, p := range candidates {
					if reported[p.id] || !p.advertisesAll(serviceUUIDs) {
						continue
					}
					reported[p.id] = true
					select {
					case <-stopChan:
						return
					default:
					}
					found(p)
				}
			}
		}
	}()

	return stop
}

func (p *Peripheral) advertisesAll(serviceUUIDs []string) bool {
	for _, s := range serviceUUIDs {
		if !p.services[s] {
			return false
		}
	}
	return true
}
