package mqtt

import "errors"

// ErrNoDevice is returned when a schedule message names no device.
var ErrNoDevice = errors.New("schedule message without device")
