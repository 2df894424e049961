package host

import (
	"context"
	"errors"
	"testing"

	"github.com/brutella/hap/characteristic"

	"hap-ble-bridge/internal/hap"
)

func TestUpdateValueNotifiesOnlyOnChange(t *testing.T) {
	c := NewCharacteristic(hap.CharReachable, hap.FormatBool, "Reachable", false)
	var calls int
	c.OnChange(func(_ *Characteristic, old, new any) {
		calls++
		if old != false || new != true {
			t.Errorf("change %v -> %v, want false -> true", old, new)
		}
	})

	if !c.UpdateValue(true) {
		t.Error("first update should report a change")
	}
	if c.UpdateValue(true) {
		t.Error("repeated update should not report a change")
	}
	if calls != 1 {
		t.Errorf("listener calls = %d, want 1", calls)
	}
}

func TestFirstUpdateNotifies(t *testing.T) {
	c := NewCharacteristic(hap.CharLinkQuality, hap.FormatUint8, "Link Quality", nil)
	if c.Value() != nil {
		t.Errorf("uncached value = %v, want nil", c.Value())
	}
	var calls int
	c.OnChange(func(_ *Characteristic, old, new any) {
		calls++
		if old != nil || new != uint8(0) {
			t.Errorf("change %v -> %v, want nil -> 0", old, new)
		}
	})
	c.UpdateValue(uint8(0))
	if calls != 1 {
		t.Errorf("listener calls = %d, want 1", calls)
	}
}

func TestGetUsesHook(t *testing.T) {
	c := NewCharacteristic(hap.CharName, hap.FormatString, "Name", "old")
	c.OnGet(func(context.Context) (any, error) { return "fresh", nil })

	v, err := c.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != "fresh" || c.Value() != "fresh" {
		t.Errorf("Get = %v, cached %v; want fresh", v, c.Value())
	}
}

func TestSetFailureKeepsCache(t *testing.T) {
	c := NewCharacteristic(hap.CharName, hap.FormatString, "Name", "old")
	c.OnSet(func(context.Context, any) error { return errors.New("write failed") })

	if err := c.Set(context.Background(), "new"); err == nil {
		t.Fatal("expected error")
	}
	if c.Value() != "old" {
		t.Errorf("cached = %v, want old", c.Value())
	}
}

func TestSetNormalizesBeforeWrite(t *testing.T) {
	tests := []struct {
		name   string
		format hap.Format
		in     any
		want   any
	}{
		{"uint8 from json number", hap.FormatUint8, float64(50), uint8(50)},
		{"int from json number", hap.FormatInt, float64(-3), int32(-3)},
		{"float from int", hap.FormatFloat, 19, float32(19)},
		{"uint64", hap.FormatUint64, float64(1 << 40), uint64(1) << 40},
		{"data copy", hap.FormatData, []byte{1, 2}, []byte{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCharacteristic(hap.ShortUUID(0x08), tt.format, "", nil)
			var written any
			c.OnSet(func(_ context.Context, v any) error {
				written = v
				return nil
			})
			if err := c.Set(context.Background(), tt.in); err != nil {
				t.Fatal(err)
			}
			if !equal(written, tt.want) {
				t.Errorf("written %v (%T), want %v (%T)", written, written, tt.want, tt.want)
			}
			if !equal(c.Value(), tt.want) {
				t.Errorf("cached %v (%T), want %v (%T)", c.Value(), c.Value(), tt.want, tt.want)
			}
		})
	}
}

func TestSetRejectsLossyNumbers(t *testing.T) {
	tests := []struct {
		format hap.Format
		in     any
	}{
		{hap.FormatUint8, 1.7},
		{hap.FormatUint64, 1e30},
		{hap.FormatInt, 2.9},
		{hap.FormatUint16, -1},
	}
	for _, tt := range tests {
		c := NewCharacteristic(hap.ShortUUID(0x08), tt.format, "", nil)
		c.OnSet(func(context.Context, any) error {
			t.Errorf("%s: setter called for %v", tt.format, tt.in)
			return nil
		})
		if err := c.Set(context.Background(), tt.in); err == nil {
			t.Errorf("Set(%s, %v): expected error", tt.format, tt.in)
		}
		if c.Value() != nil {
			t.Errorf("%s: cached %v after rejected write", tt.format, c.Value())
		}
	}
}

func TestCharacteristicMirrorsHAPFields(t *testing.T) {
	c := NewCharacteristic(hap.ShortUUID(0x08), hap.FormatUint8, "Brightness", nil)
	if c.Type != "8" {
		t.Errorf("Type = %q, want 8", c.Type)
	}
	if c.C.Format != characteristic.FormatUInt8 || c.ValueFormat() != hap.FormatUint8 {
		t.Errorf("format = %q / %q", c.C.Format, c.ValueFormat())
	}
	if c.Description != "Brightness" {
		t.Errorf("Description = %q", c.Description)
	}
}

func TestFixedServices(t *testing.T) {
	info := NewAccessoryInformation("Lock")
	if info.Characteristic(hap.CharName).Value() != "Lock" {
		t.Error("name not preset")
	}
	if len(info.Characteristics) != 7 {
		t.Errorf("info characteristics = %d, want 7", len(info.Characteristics))
	}
	if len(info.Cs) != 7 {
		t.Errorf("hap service characteristics = %d, want 7", len(info.Cs))
	}
	if info.Manufacturer.Value() != "" {
		t.Errorf("manufacturer = %v, want empty", info.Manufacturer.Value())
	}

	bs := NewBridgingState("AA:BB")
	if bs.Reachable.Value() != false {
		t.Error("Reachable should start false")
	}
	if bs.LinkQuality.Value() != uint8(1) || bs.Category.Value() != uint16(1) {
		t.Errorf("link quality %v, category %v; want 1, 1", bs.LinkQuality.Value(), bs.Category.Value())
	}
	if bs.AccessoryIdentifier.Value() != "AA:BB" {
		t.Errorf("identifier = %v", bs.AccessoryIdentifier.Value())
	}
	if bs.Characteristic(hap.CharLinkQuality) != bs.LinkQuality {
		t.Error("lookup by uuid failed")
	}
	if bs.Type != "62" {
		t.Errorf("service type = %q, want 62", bs.Type)
	}
}
