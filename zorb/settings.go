package zorb

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Orientation is a left/right preference, used for both the wrist the band
// is worn on and the side the pair button faces.
type Orientation uint8

const (
	OrientationLeft  Orientation = 0
	OrientationRight Orientation = 1
)

func (o Orientation) String() string {
	if o == OrientationRight {
		return "right"
	}
	return "left"
}

// Intensity is the overall strength setting for haptic effects.
type Intensity uint8

const (
	IntensityLow    Intensity = 0
	IntensityMedium Intensity = 1
	IntensityHigh   Intensity = 2
)

func (i Intensity) String() string {
	switch i {
	case IntensityLow:
		return "low"
	case IntensityMedium:
		return "medium"
	case IntensityHigh:
		return "high"
	default:
		return fmt.Sprintf("intensity(%d)", uint8(i))
	}
}

// Settings holds the user preferences written to the settings
// characteristic. The wire form is three bytes, packed field by field.
type Settings struct {
	WristOrientation  Orientation
	ButtonOrientation Orientation
	IntensityLevel    Intensity
}

func (s Settings) validate() error {
	if s.WristOrientation > OrientationRight {
		return fmt.Errorf("wrist orientation %d out of range", s.WristOrientation)
	}
	if s.ButtonOrientation > OrientationRight {
		return fmt.Errorf("button orientation %d out of range", s.ButtonOrientation)
	}
	if s.IntensityLevel > IntensityHigh {
		return fmt.Errorf("intensity level %d out of range", s.IntensityLevel)
	}
	return nil
}

// Bytes returns the 3-byte wire encoding.
func (s Settings) Bytes() []byte {
	return []byte{byte(s.WristOrientation), byte(s.ButtonOrientation), byte(s.IntensityLevel)}
}

// Actuators describes one direct actuation burst: a duration and an
// intensity per motor, 0 through 100.
type Actuators struct {
	Duration    time.Duration
	TopLeft     uint8
	TopRight    uint8
	BottomLeft  uint8
	BottomRight uint8
}

func (a Actuators) validate() error {
	ms := a.Duration.Milliseconds()
	if ms < 0 || ms > 0xFFFF {
		return fmt.Errorf("duration %v out of range for 16-bit milliseconds", a.Duration)
	}
	for _, v := range []struct {
		name  string
		value uint8
	}{
		{"topLeft", a.TopLeft},
		{"topRight", a.TopRight},
		{"bottomLeft", a.BottomLeft},
		{"bottomRight", a.BottomRight},
	} {
		if v.value > 100 {
			return fmt.Errorf("%s intensity %d out of range 0-100", v.name, v.value)
		}
	}
	return nil
}

// Bytes returns the 6-byte wire encoding: little-endian duration in
// milliseconds followed by the four motor intensities.
func (a Actuators) Bytes() []byte {
	out := make([]byte, 6)
	binary.LittleEndian.PutUint16(out[0:2], uint16(a.Duration.Milliseconds()))
	out[2] = a.TopLeft
	out[3] = a.TopRight
	out[4] = a.BottomLeft
	out[5] = a.BottomRight
	return out
}

// Pattern is the one-byte code of a built-in haptic pattern, written to the
// trigger characteristic.
type Pattern uint8
