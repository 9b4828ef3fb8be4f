package levels

import (
	"fmt"
	"strconv"
)

// Rotation is the sprite angle of an object. Only the four quarter turns
// exist in the file format.
type Rotation uint8

const (
	Rotate0 Rotation = iota
	Rotate90
	Rotate180
	Rotate270
)

var rotationTokens = [...]string{
	Rotate0:   "0",
	Rotate90:  "90",
	Rotate180: "180",
	Rotate270: "270",
}

// Valid reports whether r is one of the four defined rotations.
func (r Rotation) Valid() bool {
	return int(r) < len(rotationTokens)
}

// Degrees returns the angle in degrees.
func (r Rotation) Degrees() int {
	return int(r) * 90
}

func (r Rotation) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Rotation(%d)", uint8(r))
	}
	return rotationTokens[r]
}

// ParseRotation converts a sprite_angle token to a Rotation.
func ParseRotation(token string) (Rotation, error) {
	for i, t := range rotationTokens {
		if t == token {
			return Rotation(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRotation, token)
}

// RotationFromDegrees converts 0, 90, 180 or 270 to a Rotation.
func RotationFromDegrees(deg int) (Rotation, error) {
	return ParseRotation(strconv.Itoa(deg))
}

func (r Rotation) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRotation, uint8(r))
	}
	return []byte(rotationTokens[r]), nil
}

func (r *Rotation) UnmarshalText(text []byte) error {
	v, err := ParseRotation(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
