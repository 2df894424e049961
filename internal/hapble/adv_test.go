package hapble

import "testing"

func TestParseAdvertisement(t *testing.T) {
	adv, err := ParseAdvertisement(advPayload(false, 0x0102, 3))
	if err != nil {
		t.Fatal(err)
	}
	if adv.Paired() {
		t.Error("unpaired flag ignored")
	}
	if adv.DeviceID != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("device id = %q", adv.DeviceID)
	}
	if adv.Category != 5 || adv.GSN != 0x0102 || adv.ConfigNum != 3 || adv.CompatVersion != 2 {
		t.Errorf("adv = %+v", adv)
	}

	adv, _ = ParseAdvertisement(advPayload(true, 1, 1))
	if !adv.Paired() {
		t.Error("paired accessory reported unpaired")
	}
}

func TestParseAdvertisementSetupHash(t *testing.T) {
	data := append(advPayload(false, 1, 1), 0xDE, 0xAD, 0xBE, 0xEF)
	adv, err := ParseAdvertisement(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(adv.SetupHash) != 4 || adv.SetupHash[0] != 0xDE {
		t.Errorf("setup hash = %X", adv.SetupHash)
	}
}

func TestParseAdvertisementRejects(t *testing.T) {
	if _, err := ParseAdvertisement([]byte{0x06, 0x31, 0x00}); err == nil {
		t.Error("short payload accepted")
	}
	data := advPayload(false, 1, 1)
	data[0] = 0x10
	if _, err := ParseAdvertisement(data); err == nil {
		t.Error("non-HAP type accepted")
	}
}
