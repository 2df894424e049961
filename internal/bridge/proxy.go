package bridge

import (
	"context"

	"github.com/brutella/hap/characteristic"
	"github.com/google/uuid"

	"hap-ble-bridge/internal/hap"
	"hap-ble-bridge/internal/host"
)

// blacklist holds protocol-reserved services that are never proxied.
var blacklist = map[uuid.UUID]bool{
	hap.ServiceAccessoryInformation: true,
	hap.ServiceBridgingState:        true,
	hap.ServicePairing:              true,
	hap.ServiceProtocolInformation:  true,
}

// Blacklisted reports whether services of this type are kept out of the
// proxy registry.
func Blacklisted(service uuid.UUID) bool {
	return blacklist[service]
}

// ProxyCharacteristic mirrors one BLE characteristic into the host model.
// Get and Set on the embedded host characteristic reach the device.
type ProxyCharacteristic struct {
	*host.Characteristic
	meta *hap.Characteristic
}

func newProxyCharacteristic(meta *hap.Characteristic, accessor Accessor) *ProxyCharacteristic {
	c := &ProxyCharacteristic{
		Characteristic: host.NewCharacteristic(meta.Address.Characteristic, meta.Format, meta.Description, nil),
		meta:           meta,
	}
	c.Id = uint64(meta.IID)
	c.Permissions = permissions(meta)
	c.OnGet(func(ctx context.Context) (any, error) {
		return accessor.Read(ctx, meta)
	})
	c.OnSet(func(ctx context.Context, v any) error {
		return accessor.Write(ctx, meta, v)
	})
	return c
}

func permissions(meta *hap.Characteristic) []string {
	var perms []string
	if meta.Readable() {
		perms = append(perms, characteristic.PermissionRead)
	}
	if meta.Writable() {
		perms = append(perms, characteristic.PermissionWrite)
	}
	if meta.Notifies() {
		perms = append(perms, characteristic.PermissionEvents)
	}
	return perms
}

// Address returns the characteristic's BLE address.
func (c *ProxyCharacteristic) Address() hap.Address {
	return c.meta.Address
}

// Metadata returns the backing discovered metadata.
func (c *ProxyCharacteristic) Metadata() *hap.Characteristic {
	return c.meta
}

// Refreshable reports whether the cached value is eagerly pulled from the
// device. Raw data and TLV8 values are decoded elsewhere.
func (c *ProxyCharacteristic) Refreshable() bool {
	return !c.meta.Format.Opaque()
}

// Refresh pulls the current value from the device into the cache.
func (c *ProxyCharacteristic) Refresh(ctx context.Context) error {
	_, err := c.Get(ctx)
	return err
}

// ProxyService mirrors one discovered BLE service.
type ProxyService struct {
	*host.Service
	meta    *hap.Service
	proxies []*ProxyCharacteristic
}

func newProxyService(meta *hap.Service, accessor Accessor) *ProxyService {
	s := &ProxyService{Service: host.NewService(meta.UUID), meta: meta}
	s.Id = uint64(meta.IID)
	for _, c := range meta.Characteristics {
		p := newProxyCharacteristic(c, accessor)
		s.Add(p.Characteristic)
		s.proxies = append(s.proxies, p)
	}
	return s
}

// Metadata returns the discovered service metadata.
func (s *ProxyService) Metadata() *hap.Service {
	return s.meta
}

// Proxies returns the service's proxy characteristics in discovery order.
func (s *ProxyService) Proxies() []*ProxyCharacteristic {
	return s.proxies
}

// Registry is the immutable service list of one accessory: the fixed
// services followed by one proxy per non-blacklisted discovered service.
type Registry struct {
	fixed   []*host.Service
	proxies []*ProxyService
	index   map[hap.Address]*ProxyCharacteristic
}

// NewRegistry builds the registry and its address index. When services or
// characteristics repeat, the first one wins.
func NewRegistry(fixed []*host.Service, proxies []*ProxyService) *Registry {
	r := &Registry{
		fixed:   fixed,
		proxies: proxies,
		index:   make(map[hap.Address]*ProxyCharacteristic),
	}
	seen := make(map[uuid.UUID]bool)
	for _, s := range proxies {
		if seen[s.UUID] {
			continue
		}
		seen[s.UUID] = true
		for _, c := range s.proxies {
			if _, dup := r.index[c.Address()]; !dup {
				r.index[c.Address()] = c
			}
		}
	}
	return r
}

// Services returns fixed services then proxies.
func (r *Registry) Services() []*host.Service {
	out := make([]*host.Service, 0, len(r.fixed)+len(r.proxies))
	out = append(out, r.fixed...)
	for _, s := range r.proxies {
		out = append(out, s.Service)
	}
	return out
}

// Proxies returns the proxy services.
func (r *Registry) Proxies() []*ProxyService {
	return r.proxies
}

// Lookup resolves an address to its proxy characteristic.
func (r *Registry) Lookup(addr hap.Address) (*ProxyCharacteristic, bool) {
	c, ok := r.index[addr]
	return c, ok
}

// Refreshable returns every proxy characteristic eligible for refresh.
func (r *Registry) Refreshable() []*ProxyCharacteristic {
	var out []*ProxyCharacteristic
	for _, s := range r.proxies {
		for _, c := range s.proxies {
			if c.Refreshable() {
				out = append(out, c)
			}
		}
	}
	return out
}
