package zorb

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/somatic-tech/zorbgo/logger"
	"github.com/somatic-tech/zorbgo/transport"
)

// Manager resolves a physical device and binds it to a Session. Resolution
// tries, in order: the persisted identity, peripherals the system already
// holds connected, and finally a bounded discovery scan. The first device
// found by scan has its identifier persisted for the next run.
//
// A Manager is an explicitly constructed, owned object; hold one per
// application (single-device) or create sessions per device via Discover.
type Manager struct {
	central  transport.Central
	identity *IdentityStore
	prefix   string

	mu             sync.Mutex
	session        *Session
	connectTimeout time.Duration
	scanTimeout    time.Duration
}

// NewManager creates a manager over the given radio stack. identity may be
// nil, in which case no device binding is persisted.
func NewManager(central transport.Central, identity *IdentityStore) *Manager {
	return &Manager{
		central:        central,
		identity:       identity,
		connectTimeout: DefaultConnectTimeout,
		scanTimeout:    DefaultScanTimeout,
		prefix:         "manager",
	}
}

// SetTimeouts overrides the connect and scan bounds. Safe to call while a
// resolution is in progress; the new bounds apply to later phases.
func (m *Manager) SetTimeouts(connect, scan time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectTimeout = connect
	m.scanTimeout = scan
}

func (m *Manager) timeouts() (connect, scan time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectTimeout, m.scanTimeout
}

// Session returns the currently bound session, or nil.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Connect resolves a device and delivers a connected session. done fires
// exactly once.
func (m *Manager) Connect(done func(*Session, error)) {
	go func() {
		done(m.resolve())
	}()
}

func (m *Manager) resolve() (*Session, error) {
	// Persisted identity first: straight reconnect, no radio scan.
	if m.identity != nil {
		if id, ok := m.identity.Identifier(); ok {
			if p, found := m.central.RetrievePeripheral(id); found {
				logger.Debug(m.prefix, "reconnecting to persisted device %s", shortPrefix(id))
				sess, err := m.bind(p, false)
				if err == nil {
					return sess, nil
				}
				if errors.Is(err, ErrUnexpectedIdentity) {
					return nil, err
				}
				logger.Warn(m.prefix, "persisted reconnect failed, falling back to scan: %v", err)
			}
		}
	}

	// Peripherals the system already holds connected.
	for _, p := range m.central.ConnectedPeripherals([]string{ServiceUUID}) {
		if p.Name() == DeviceName {
			logger.Debug(m.prefix, "binding already-connected device %s", shortPrefix(p.Identifier()))
			return m.bind(p, true)
		}
	}

	// Fresh discovery scan, bounded by the scan timeout.
	p, err := m.scanFirst()
	if err != nil {
		return nil, err
	}
	return m.bind(p, true)
}

// bind connects a peripheral, validates its advertised name, and installs
// the session. A name mismatch is a hard failure: the link is dropped and
// the session is not stored.
func (m *Manager) bind(p transport.Peripheral, persist bool) (*Session, error) {
	sess := NewSession(p)

	connect, _ := m.timeouts()
	connectErr := make(chan error, 1)
	sess.Connect(connect, func(err error) { connectErr <- err })
	if err := <-connectErr; err != nil {
		return nil, err
	}

	if p.Name() != DeviceName {
		logger.Error(m.prefix, "unexpectedly connected to %q, dropping link", p.Name())
		sess.Disconnect()
		return nil, fmt.Errorf("%w: unexpectedly connected to %q", ErrUnexpectedIdentity, p.Name())
	}

	if persist && m.identity != nil {
		if err := m.identity.Save(p.Identifier()); err != nil {
			logger.Warn(m.prefix, "could not persist device identity: %v", err)
		}
	}

	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()
	return sess, nil
}

// scanFirst scans until the first peripheral advertising the expected name
// shows up, then stops the scan.
func (m *Manager) scanFirst() (transport.Peripheral, error) {
	_, scanTimeout := m.timeouts()
	found := make(chan transport.Peripheral, 1)
	scanErr := make(chan error, 1)

	stop := m.central.Scan([]string{ServiceUUID}, func(p transport.Peripheral) {
		if p.Name() != DeviceName {
			return
		}
		select {
		case found <- p:
		default:
		}
	}, func(err error) {
		select {
		case scanErr <- err:
		default:
		}
	})
	defer stop()

	select {
	case p := <-found:
		logger.Info(m.prefix, "📡 discovered %s (%s)", p.Name(), shortPrefix(p.Identifier()))
		return p, nil
	case err := <-scanErr:
		return nil, fmt.Errorf("%w: %v", ErrDiscoveryFailure, err)
	case <-time.After(scanTimeout):
		return nil, fmt.Errorf("%w: no %s found within %v", ErrDiscoveryFailure, DeviceName, scanTimeout)
	}
}

// Discover enumerates every matching device visible within the scan window
// plus every already-connected one, deduplicated by identifier. Each is
// wrapped in an independent, not-yet-connected Session; connecting one does
// not affect the others.
func (m *Manager) Discover(done func([]*Session, error)) {
	go func() {
		_, scanTimeout := m.timeouts()
		var mu sync.Mutex
		seen := make(map[string]transport.Peripheral)

		for _, p := range m.central.ConnectedPeripherals([]string{ServiceUUID}) {
			if p.Name() == DeviceName {
				seen[p.Identifier()] = p
			}
		}

		scanErr := make(chan error, 1)
		stop := m.central.Scan([]string{ServiceUUID}, func(p transport.Peripheral) {
			if p.Name() != DeviceName {
				return
			}
			mu.Lock()
			seen[p.Identifier()] = p
			mu.Unlock()
		}, func(err error) {
			select {
			case scanErr <- err:
			default:
			}
		})

		select {
		case err := <-scanErr:
			stop()
			done(nil, fmt.Errorf("%w: %v", ErrDiscoveryFailure, err))
			return
		case <-time.After(scanTimeout):
			stop()
		}

		mu.Lock()
		sessions := make([]*Session, 0, len(seen))
		for _, p := range seen {
			sessions = append(sessions, NewSession(p))
		}
		mu.Unlock()

		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].Identifier() < sessions[j].Identifier()
		})
		logger.Info(m.prefix, "📡 discovery window closed, %d device(s) found", len(sessions))
		done(sessions, nil)
	}()
}

// Forget drops the bound session and clears the persisted identity.
func (m *Manager) Forget() error {
	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.mu.Unlock()

	if sess != nil {
		sess.Disconnect()
	}
	if m.identity != nil {
		return m.identity.Clear()
	}
	return nil
}
