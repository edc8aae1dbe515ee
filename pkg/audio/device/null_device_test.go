package device

import "testing"

func TestNullDeviceTickDoesNotPanic(t *testing.T) {
	n := NewNullDevice(NewDeviceKey("null", "dev"), 2, 2)
	n.Tick(64)
}
