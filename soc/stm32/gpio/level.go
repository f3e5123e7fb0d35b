// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

package gpio

// Level is the electrical level driven onto or read from a pin.
type Level bool

const (
	// Low represents 0V.
	Low Level = false
	// High represents the board's logic supply rail.
	High Level = true
)

func (l Level) String() string {
	if l == Low {
		return "Low"
	}
	return "High"
}

// Pull specifies whether a floating input pin additionally enables its
// weak pull resistor, and in which direction.
type Pull uint8

// Pull settings, selected via ODR while the pin is configured as
// ModeInputPullUpDown.
const (
	Float Pull = iota
	PullDown
	PullUp
)

func (p Pull) String() string {
	switch p {
	case PullDown:
		return "PullDown"
	case PullUp:
		return "PullUp"
	default:
		return "Float"
	}
}

// SetInputPull configures the pin as an input with the given pull
// direction (or floating).
func (pin *Pin) SetInputPull(pull Pull) {
	if pull == Float {
		pin.SetMode(ModeInputFloating)
		return
	}
	pin.SetMode(ModeInputPullUpDown)
	if pull == PullUp {
		pin.High()
	} else {
		pin.Low()
	}
}
