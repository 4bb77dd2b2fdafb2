// Package transport defines the radio boundary the SDK drives. The SDK
// never talks to a radio directly; it is handed a Central and resolves
// Peripherals through it. Every operation is asynchronous with a completion
// callback, and a peripheral accepts at most one outstanding operation at a
// time — sequencing is the caller's job, the transport has no queuing of
// its own.
package transport

import (
	"time"
)

// Central resolves physical peripherals. Implementations deliver callbacks
// from their own event context, which is not the caller's goroutine.
type Central interface {
	// RetrievePeripheral looks up a peripheral by its persisted identifier.
	// The second return value is false when the identifier is unknown to
	// the radio stack.
	RetrievePeripheral(identifier string) (Peripheral, bool)

	// ConnectedPeripherals returns peripherals already connected at the
	// system level that expose every listed service.
	ConnectedPeripherals(serviceUUIDs []string) []Peripheral

	// Scan starts advertisement discovery filtered by service UUIDs. Each
	// discovered peripheral is delivered to found; an unrecoverable scan
	// error is delivered to failed. The returned stop function ends the
	// scan and is safe to call more than once.
	Scan(serviceUUIDs []string, found func(Peripheral), failed func(error)) (stop func())
}

// Peripheral is one physical device. Connect, WriteValue and ReadValue
// complete asynchronously and must not be overlapped: issue the next
// operation only after the previous completion fired.
type Peripheral interface {
	// Identifier returns the stable identifier used for reconnection.
	Identifier() string

	// Name returns the advertised device name.
	Name() string

	// Connect establishes a link, bounded by timeout.
	Connect(timeout time.Duration, done func(error))

	// Disconnect tears the link down. In-flight operations complete with
	// an error.
	Disconnect()

	// OnDisconnected registers a handler invoked when the link drops,
	// whether from Disconnect or from the remote side.
	OnDisconnected(handler func())

	// WriteValue writes value to a characteristic and reports the outcome
	// once the link acknowledged the write.
	WriteValue(serviceUUID, characteristicUUID string, value []byte, done func(error))

	// ReadValue reads a characteristic's current value.
	ReadValue(serviceUUID, characteristicUUID string, done func(value []byte, err error))
}
