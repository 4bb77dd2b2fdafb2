package zorb

import "time"

// DeviceName is the name a genuine device advertises. Connection resolution
// rejects any peripheral advertising something else.
const DeviceName = "Zorb"

// Primary service and characteristic identifiers. The service base encodes
// the vendor prefix; characteristics differ in the second byte group.
const (
	ServiceUUID      = "5A4F5242-0001-4653-9287-6B6C67742A00"
	BytecodeCharUUID = "5A4F5242-0002-4653-9287-6B6C67742A00"
	SettingsCharUUID = "5A4F5242-0003-4653-9287-6B6C67742A00"
	ActuatorCharUUID = "5A4F5242-0004-4653-9287-6B6C67742A00"
	TriggerCharUUID  = "5A4F5242-0005-4653-9287-6B6C67742A00"
)

// Standard Device Information Service identifiers used for version and
// serial reads.
const (
	DeviceInfoServiceUUID    = "0000180A-0000-1000-8000-00805F9B34FB"
	FirmwareRevisionCharUUID = "00002A26-0000-1000-8000-00805F9B34FB"
	SerialNumberCharUUID     = "00002A25-0000-1000-8000-00805F9B34FB"
)

// Default bounds for connection resolution. Individual chunk writes carry no
// timeout; only connect and scan are bounded.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultScanTimeout    = 10 * time.Second
)

// identityKey is the fixed settings key the bound device identifier is
// persisted under.
const identityKey = "device.identifier"
