//go:build darwin || windows

package hapble

// Write sends a GATT write request and waits for the acknowledgement.
func (d *deviceCharacteristic) Write(p []byte) (int, error) {
	return d.c.Write(p)
}
