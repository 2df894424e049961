//go:build !darwin && !windows

package hapble

// Write sends a GATT write command. BlueZ support in tinygo bluetooth only
// offers write-without-response; accessories still answer on the next read.
func (d *deviceCharacteristic) Write(p []byte) (int, error) {
	return d.c.WriteWithoutResponse(p)
}
