package hapble

import (
	"testing"

	"hap-ble-bridge/internal/hap"
)

// deviceCharacteristic must satisfy GATTCharacteristic on every platform,
// including BlueZ where only write-without-response exists.
var _ GATTCharacteristic = (*deviceCharacteristic)(nil)

func TestDeviceCharacteristicUUID(t *testing.T) {
	var c GATTCharacteristic = &deviceCharacteristic{id: hap.CharPairSetup}
	if c.UUID() != hap.CharPairSetup {
		t.Errorf("UUID = %s, want %s", c.UUID(), hap.CharPairSetup)
	}
}
