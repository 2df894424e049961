// Package host is the bridge-side accessory object model: services and
// characteristics with cached values, change listeners and optional
// get/set hooks that reach through to a device. Values live in typed
// brutella/hap characteristics.
package host

import (
	"bytes"
	"context"
	"sync"

	"github.com/brutella/hap/characteristic"
	"github.com/google/uuid"

	"hap-ble-bridge/internal/hap"
)

// ChangeFunc observes a cached value change.
type ChangeFunc func(c *Characteristic, old, new any)

// holder adapts a typed brutella characteristic to the values hap.Normalize
// produces.
type holder interface {
	load() any
	store(v any)
}

type boolValue struct{ *characteristic.Bool }

func (h boolValue) load() any   { return h.Value() }
func (h boolValue) store(v any) { h.SetValue(v.(bool)) }

type stringValue struct{ *characteristic.String }

func (h stringValue) load() any   { return h.Value() }
func (h stringValue) store(v any) { h.SetValue(v.(string)) }

type bytesValue struct{ *characteristic.Bytes }

func (h bytesValue) load() any   { return h.Value() }
func (h bytesValue) store(v any) { h.SetValue(v.([]byte)) }

type floatValue struct{ *characteristic.Float }

func (h floatValue) load() any   { return float32(h.Value()) }
func (h floatValue) store(v any) { h.SetValue(float64(v.(float32))) }

// intValue backs every integer format. uint64 is stored bit-for-bit.
type intValue struct {
	*characteristic.Int
	format hap.Format
}

func (h intValue) load() any {
	v := h.Value()
	switch h.format {
	case hap.FormatUint8:
		return uint8(v)
	case hap.FormatUint16:
		return uint16(v)
	case hap.FormatUint32:
		return uint32(v)
	case hap.FormatUint64:
		return uint64(v)
	}
	return int32(v)
}

func (h intValue) store(v any) {
	switch n := v.(type) {
	case uint8:
		h.SetValue(int(n))
	case uint16:
		h.SetValue(int(n))
	case uint32:
		h.SetValue(int(n))
	case uint64:
		h.SetValue(int(n))
	case int32:
		h.SetValue(int(n))
	}
}

// Characteristic is one host-side characteristic with a cached value.
type Characteristic struct {
	*characteristic.C
	UUID uuid.UUID

	format hap.Format
	holder holder

	mu        sync.Mutex
	cached    bool
	getter    func(ctx context.Context) (any, error)
	setter    func(ctx context.Context, v any) error
	listeners []ChangeFunc
}

func wrap(id uuid.UUID, format hap.Format, c *characteristic.C, h holder) *Characteristic {
	c.Format = string(format)
	return &Characteristic{C: c, UUID: id, format: format, holder: h}
}

// NewCharacteristic creates a characteristic of the given format. A nil
// initial leaves it uncached until the first update.
func NewCharacteristic(id uuid.UUID, format hap.Format, description string, initial any) *Characteristic {
	t := hap.ShortName(id)
	var c *Characteristic
	switch format {
	case hap.FormatBool:
		b := characteristic.NewBool(t)
		c = wrap(id, format, b.C, boolValue{b})
	case hap.FormatFloat:
		f := characteristic.NewFloat(t)
		c = wrap(id, format, f.C, floatValue{f})
	case hap.FormatString:
		s := characteristic.NewString(t)
		c = wrap(id, format, s.C, stringValue{s})
	case hap.FormatTLV8, hap.FormatData:
		b := characteristic.NewBytes(t)
		c = wrap(id, format, b.C, bytesValue{b})
	default:
		i := characteristic.NewInt(t)
		c = wrap(id, format, i.C, intValue{Int: i, format: format})
	}
	c.Description = description
	if initial != nil {
		c.UpdateValue(initial)
	}
	return c
}

// ValueFormat returns the declared HAP format.
func (c *Characteristic) ValueFormat() hap.Format {
	return c.format
}

// Value returns the cached value, or nil before the first update.
func (c *Characteristic) Value() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cached {
		return nil
	}
	return c.holder.load()
}

// UpdateValue caches v and notifies listeners if it changed. Values the
// format cannot hold are dropped and reported as unchanged.
func (c *Characteristic) UpdateValue(v any) bool {
	nv, err := hap.Normalize(c.format, v)
	if err != nil {
		return false
	}

	c.mu.Lock()
	var old any
	if c.cached {
		old = c.holder.load()
	}
	c.holder.store(nv)
	cur := c.holder.load()
	if c.cached && equal(old, cur) {
		c.mu.Unlock()
		return false
	}
	c.cached = true
	listeners := make([]ChangeFunc, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(c, old, cur)
	}
	return true
}

func equal(a, b any) bool {
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ab, bb)
	}
	return a == b
}

// OnChange registers a listener for cached value changes.
func (c *Characteristic) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// OnGet installs a hook that fetches a fresh value on Get.
func (c *Characteristic) OnGet(fn func(ctx context.Context) (any, error)) {
	c.mu.Lock()
	c.getter = fn
	c.mu.Unlock()
}

// OnSet installs a hook that pushes a value to the device on Set. The hook
// receives the value already normalized to the characteristic's format.
func (c *Characteristic) OnSet(fn func(ctx context.Context, v any) error) {
	c.mu.Lock()
	c.setter = fn
	c.mu.Unlock()
}

// Get returns a fresh value through the get hook, or the cached value.
func (c *Characteristic) Get(ctx context.Context) (any, error) {
	c.mu.Lock()
	getter := c.getter
	c.mu.Unlock()
	if getter == nil {
		return c.Value(), nil
	}
	v, err := getter(ctx)
	if err != nil {
		return nil, err
	}
	c.UpdateValue(v)
	return v, nil
}

// Set normalizes v, pushes it through the set hook and caches it on
// success.
func (c *Characteristic) Set(ctx context.Context, v any) error {
	nv, err := hap.Normalize(c.format, v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	setter := c.setter
	c.mu.Unlock()
	if setter != nil {
		if err := setter(ctx, nv); err != nil {
			return err
		}
	}
	c.UpdateValue(nv)
	return nil
}
