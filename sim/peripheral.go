package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/somatic-tech/zorbgo/logger"
)

// Peripheral is an in-memory device used in place of a real radio. It keeps
// a value store per characteristic, logs every write it acknowledges, and
// enforces the one-operation-in-flight rule so misuse shows up in tests
// instead of on hardware.
type Peripheral struct {
	id       string
	name     string
	services map[string]bool

	mu                 sync.Mutex
	connected          bool
	inFlight           bool
	latency            time.Duration
	connectErr         error
	values             map[string][]byte
	writes             map[string][][]byte
	writeHook          func(serviceUUID, characteristicUUID string, value []byte) error
	disconnectHandlers []func()
}

// NewPeripheral creates a disconnected peripheral advertising the given
// services. The identifier is random, like a freshly observed device.
func NewPeripheral(name string, serviceUUIDs ...string) *Peripheral {
	services := make(map[string]bool, len(serviceUUIDs))
	for _, s := range serviceUUIDs {
		services[s] = true
	}
	return &Peripheral{
		id:       uuid.NewString(),
		name:     name,
		services: services,
		values:   make(map[string][]byte),
		writes:   make(map[string][][]byte),
	}
}

func (p *Peripheral) Identifier() string { return p.id }

func (p *Peripheral) Name() string { return p.name }

// SetLatency makes every operation take d before completing.
func (p *Peripheral) SetLatency(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latency = d
}

// SetConnectError makes subsequent Connect attempts fail with err.
func (p *Peripheral) SetConnectError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectErr = err
}

// SetWriteHook installs a hook consulted before a write is acknowledged.
// Returning an error fails that write. Used to inject mid-drain failures.
func (p *Peripheral) SetWriteHook(hook func(serviceUUID, characteristicUUID string, value []byte) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeHook = hook
}

// SetValue seeds a characteristic's readable value.
func (p *Peripheral) SetValue(serviceUUID, characteristicUUID string, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[charKey(serviceUUID, characteristicUUID)] = append([]byte(nil), value...)
}

// Writes returns every value written to a characteristic, in order.
func (p *Peripheral) Writes(serviceUUID, characteristicUUID string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	logged := p.writes[charKey(serviceUUID, characteristicUUID)]
	out := make([][]byte, len(logged))
	for i, w := range logged {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// Connected reports whether the link is up.
func (p *Peripheral) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *Peripheral) Connect(timeout time.Duration, done func(error)) {
	go func() {
		p.mu.Lock()
		latency := p.latency
		connectErr := p.connectErr
		p.mu.Unlock()

		if latency > 0 {
			if timeout > 0 && latency > timeout {
				time.Sleep(timeout)
				done(fmt.Errorf("connect to %s timed out after %v", shortID(p.id), timeout))
				return
			}
			time.Sleep(latency)
		}

		if connectErr != nil {
			done(connectErr)
			return
		}

		p.mu.Lock()
		already := p.connected
		p.connected = true
		p.mu.Unlock()

		if !already {
			logger.Debug("sim", "🔗 %s (%s) connected", p.name, shortID(p.id))
		}
		done(nil)
	}()
}

func (p *Peripheral) Disconnect() {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return
	}
	p.connected = false
	handlers := append([]func(){}, p.disconnectHandlers...)
	p.mu.Unlock()

	logger.Debug("sim", "🔌 %s (%s) disconnected", p.name, shortID(p.id))
	for _, h := range handlers {
		h()
	}
}

func (p *Peripheral) OnDisconnected(handler func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnectHandlers = append(p.disconnectHandlers, handler)
}

func (p *Peripheral) WriteValue(serviceUUID, characteristicUUID string, value []byte, done func(error)) {
	owned := append([]byte(nil), value...)
	p.startOp(done, func() error {
		p.mu.Lock()
		hook := p.writeHook
		p.mu.Unlock()

		if hook != nil {
			if err := hook(serviceUUID, characteristicUUID, owned); err != nil {
				return err
			}
		}

		key := charKey(serviceUUID, characteristicUUID)
		p.mu.Lock()
		p.values[key] = owned
		p.writes[key] = append(p.writes[key], owned)
		p.mu.Unlock()
		return nil
	})
}

func (p *Peripheral) ReadValue(serviceUUID, characteristicUUID string, done func([]byte, error)) {
	var value []byte
	p.startOp(func(err error) { done(value, err) }, func() error {
		p.mu.Lock()
		stored, ok := p.values[charKey(serviceUUID, characteristicUUID)]
		p.mu.Unlock()
		if !ok {
			return fmt.Errorf("characteristic %s not found on %s", characteristicUUID, p.name)
		}
		value = append([]byte(nil), stored...)
		return nil
	})
}

// startOp runs one transport operation asynchronously, enforcing the
// single-outstanding discipline and the connected precondition.
func (p *Peripheral) startOp(done func(error), op func() error) {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		go done(fmt.Errorf("peripheral %s not connected", shortID(p.id)))
		return
	}
	if p.inFlight {
		p.mu.Unlock()
		go done(fmt.Errorf("peripheral %s already has an operation in flight", shortID(p.id)))
		return
	}
	p.inFlight = true
	latency := p.latency
	p.mu.Unlock()

	go func() {
		if latency > 0 {
			time.Sleep(latency)
		}

		var err error
		p.mu.Lock()
		connected := p.connected
		p.mu.Unlock()
		if !connected {
			err = fmt.Errorf("peripheral %s disconnected mid-operation", shortID(p.id))
		} else {
			err = op()
		}

		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
		done(err)
	}()
}

func charKey(serviceUUID, characteristicUUID string) string {
	return serviceUUID + "/" + characteristicUUID
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
