package zorb

import (
	"context"
	"encoding/base64"
	"fmt"
	"runtime"
	"sync"
	"time"
	"unicode/utf8"

	"google.golang.org/protobuf/proto"

	"github.com/somatic-tech/zorbgo/compile"
	"github.com/somatic-tech/zorbgo/logger"
	"github.com/somatic-tech/zorbgo/transport"
)

// State is a session's position in its connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session owns one connected device: its chunked writer, its packet queue,
// and the command surface built on top of them. Commands are accepted only
// while connected; anything issued earlier or later fails immediately with
// ErrNotConnected instead of queuing across connections.
//
// Every command takes a completion callback invoked exactly once, on the
// transport's callback context.
type Session struct {
	peripheral transport.Peripheral
	writer     *chunkedWriter
	prefix     string

	mu    sync.RWMutex
	state State
}

// NewSession wraps a resolved peripheral. The session starts disconnected;
// call Connect before issuing commands.
func NewSession(p transport.Peripheral) *Session {
	s := &Session{
		peripheral: p,
		state:      StateDisconnected,
		prefix:     "session " + shortPrefix(p.Identifier()),
	}
	s.writer = newChunkedWriter(s.prefix, func(chunk []byte, done func(error)) {
		p.WriteValue(ServiceUUID, BytecodeCharUUID, chunk, done)
	})
	p.OnDisconnected(s.handleDisconnect)
	return s
}

// Identifier returns the bound peripheral's stable identifier.
func (s *Session) Identifier() string { return s.peripheral.Identifier() }

// Name returns the bound peripheral's advertised name.
func (s *Session) Name() string { return s.peripheral.Name() }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Connect brings the link up, bounded by timeout. Connecting an already
// connected session completes immediately.
func (s *Session) Connect(timeout time.Duration, done func(error)) {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		done(nil)
		return
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.peripheral.Connect(timeout, func(err error) {
		s.mu.Lock()
		if err != nil {
			s.state = StateFailed
		} else {
			s.state = StateConnected
		}
		s.mu.Unlock()

		if err != nil {
			logger.Warn(s.prefix, "connect failed: %v", err)
			done(fmt.Errorf("connect: %w", err))
			return
		}
		logger.Info(s.prefix, "🔗 connected to %s", s.peripheral.Name())
		done(nil)
	})
}

// Disconnect tears the link down. Pending write sets fail with
// ErrDisconnected and the packet queue is cleared, so a later reconnect
// starts from a clean queue.
func (s *Session) Disconnect() {
	s.peripheral.Disconnect()
}

func (s *Session) handleDisconnect() {
	s.mu.Lock()
	wasConnected := s.state == StateConnected || s.state == StateConnecting
	s.state = StateDisconnected
	s.mu.Unlock()

	if wasConnected {
		logger.Info(s.prefix, "🔌 link dropped")
	}
	s.writer.Fail(ErrDisconnected)
}

func (s *Session) connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateConnected
}

// WriteBytecode transmits a compiled bytecode image through the chunked
// writer. done fires once every chunk was acknowledged.
func (s *Session) WriteBytecode(code []byte, done func(error)) {
	if !s.connected() {
		done(ErrNotConnected)
		return
	}
	s.writer.Submit(code, done)
}

// WriteBytecodeString decodes a base64 bytecode image and transmits it.
// Malformed input fails with ErrDecode before anything reaches the
// transport.
func (s *Session) WriteBytecodeString(encoded string, done func(error)) {
	code, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		done(fmt.Errorf("%w: bad base64 bytecode: %v", ErrDecode, err))
		return
	}
	s.WriteBytecode(code, done)
}

// WriteTimeline marshals a protobuf timeline message and transmits it
// through the chunked writer.
func (s *Session) WriteTimeline(msg proto.Message, done func(error)) {
	if !s.connected() {
		done(ErrNotConnected)
		return
	}
	payload, err := proto.Marshal(msg)
	if err != nil {
		done(fmt.Errorf("marshal timeline: %w", err))
		return
	}
	logger.DebugJSON(s.prefix, "timeline", msg)
	s.writer.Submit(payload, done)
}

// WriteCompiled compiles source text through the remote compiler service
// and transmits the resulting bytecode.
func (s *Session) WriteCompiled(ctx context.Context, client *compile.Client, source string, done func(error)) {
	if !s.connected() {
		done(ErrNotConnected)
		return
	}
	go func() {
		code, err := client.CompileSource(ctx, source)
		if err != nil {
			done(err)
			return
		}
		s.WriteBytecode(code, done)
	}()
}

// Reset sends the empty reset frame. The firmware acknowledges the write
// before the reset has actually taken effect internally, so completion is
// deferred past a scheduler yield. This is a workaround for that specific
// firmware race, not a general pattern.
func (s *Session) Reset(done func(error)) {
	if !s.connected() {
		done(ErrNotConnected)
		return
	}
	s.writer.Submit(nil, func(err error) {
		if err != nil {
			done(err)
			return
		}
		go func() {
			runtime.Gosched()
			done(nil)
		}()
	})
}

// WriteSettings packs the user preferences and writes them directly to the
// settings characteristic. The 3-byte payload fits one link write, so it
// bypasses the packet queue.
func (s *Session) WriteSettings(settings Settings, done func(error)) {
	if !s.connected() {
		done(ErrNotConnected)
		return
	}
	if err := s.validateInput(settings.validate()); err != nil {
		done(err)
		return
	}
	logger.Debug(s.prefix, "writing settings wrist=%s button=%s intensity=%s",
		settings.WristOrientation, settings.ButtonOrientation, settings.IntensityLevel)
	s.peripheral.WriteValue(ServiceUUID, SettingsCharUUID, settings.Bytes(), done)
}

// WriteActuators packs one actuation burst and writes it directly to the
// actuator characteristic.
func (s *Session) WriteActuators(actuators Actuators, done func(error)) {
	if !s.connected() {
		done(ErrNotConnected)
		return
	}
	if err := s.validateInput(actuators.validate()); err != nil {
		done(err)
		return
	}
	s.peripheral.WriteValue(ServiceUUID, ActuatorCharUUID, actuators.Bytes(), done)
}

// TriggerPattern writes a built-in pattern code to the trigger
// characteristic.
func (s *Session) TriggerPattern(pattern Pattern, done func(error)) {
	if !s.connected() {
		done(ErrNotConnected)
		return
	}
	s.peripheral.WriteValue(ServiceUUID, TriggerCharUUID, []byte{byte(pattern)}, done)
}

// ReadVersion reads the firmware revision string.
func (s *Session) ReadVersion(done func(string, error)) {
	s.readText(DeviceInfoServiceUUID, FirmwareRevisionCharUUID, done)
}

// ReadSerial reads the device serial number string.
func (s *Session) ReadSerial(done func(string, error)) {
	s.readText(DeviceInfoServiceUUID, SerialNumberCharUUID, done)
}

func (s *Session) readText(serviceUUID, characteristicUUID string, done func(string, error)) {
	if !s.connected() {
		done("", ErrNotConnected)
		return
	}
	s.peripheral.ReadValue(serviceUUID, characteristicUUID, func(value []byte, err error) {
		if err != nil {
			done("", fmt.Errorf("read characteristic: %w", err))
			return
		}
		if !utf8.Valid(value) {
			done("", fmt.Errorf("%w: characteristic %s is not valid UTF-8", ErrDecode, characteristicUUID))
			return
		}
		done(string(value), nil)
	})
}

func (s *Session) validateInput(err error) error {
	if err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}

func shortPrefix(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
