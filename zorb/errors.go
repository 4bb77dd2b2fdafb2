package zorb

import "errors"

var (
	// ErrNotConnected is reported when a command is issued on a session
	// with no live link. Commands are never queued across connections.
	ErrNotConnected = errors.New("zorb: not connected")

	// ErrUnexpectedIdentity is reported when a resolved peripheral
	// advertises a name other than DeviceName.
	ErrUnexpectedIdentity = errors.New("zorb: unexpected device identity")

	// ErrDiscoveryFailure is reported when a scan window closes without a
	// matching device, or the scan itself errors.
	ErrDiscoveryFailure = errors.New("zorb: device discovery failed")

	// ErrDecode is reported for malformed base64 bytecode input and for
	// non-UTF-8 bytes read from a text characteristic.
	ErrDecode = errors.New("zorb: decode failed")

	// ErrDisconnected is reported to pending write sets when the link
	// drops mid-drain.
	ErrDisconnected = errors.New("zorb: disconnected")
)
