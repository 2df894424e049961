package hapble

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"hap-ble-bridge/internal/hap"
)

var errSubscriptionsClosed = errors.New("hapble: subscriptions closed")

// Subscriptions delivers change notifications for one peripheral. Connected
// events arrive as GATT indications; disconnected events are inferred from a
// changed global state number in the advertisement.
type Subscriptions struct {
	p      *Peripheral
	logger *slog.Logger

	mu      sync.Mutex
	subs    map[hap.Address]*subscription
	gsn     uint16
	haveGSN bool
	closed  bool
}

type subscription struct {
	c      *hap.Characteristic
	notify func()
}

func newSubscriptions(p *Peripheral, logger *slog.Logger) *Subscriptions {
	s := &Subscriptions{
		p:      p,
		logger: logger,
		subs:   make(map[hap.Address]*subscription),
	}
	p.OnConnect(s.resubscribe)
	p.OnManufacturerData(s.handleAdvertisement)
	return s
}

// Subscribe implements bridge.SubscriptionManager.
func (s *Subscriptions) Subscribe(ctx context.Context, c *hap.Characteristic, notify func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSubscriptionsClosed
	}
	s.subs[c.Address] = &subscription{c: c, notify: notify}
	s.mu.Unlock()

	if c.Properties&hap.PropEventsConnected == 0 {
		return nil
	}
	return s.p.exec.withSession(ctx, func(sess *Session) error {
		return sess.Subscribe(c, s.dispatcher(c.Address))
	})
}

func (s *Subscriptions) dispatcher(addr hap.Address) func() {
	return func() {
		s.mu.Lock()
		sub, ok := s.subs[addr]
		closed := s.closed
		s.mu.Unlock()
		if ok && !closed {
			sub.notify()
		}
	}
}

// resubscribe re-enables indications on a fresh session. It runs with the
// peripheral's connection lock held.
func (s *Subscriptions) resubscribe(sess *Session) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var subs []*subscription
	for _, sub := range s.subs {
		if sub.c.Properties&hap.PropEventsConnected != 0 {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if err := sess.Subscribe(sub.c, s.dispatcher(sub.c.Address)); err != nil {
			s.logger.Warn("resubscribe failed", "characteristic", sub.c.Address.String(), "err", err)
		}
	}
}

func (s *Subscriptions) handleAdvertisement(data []byte) {
	adv, err := ParseAdvertisement(data)
	if err != nil {
		return
	}

	s.mu.Lock()
	changed := s.haveGSN && adv.GSN != s.gsn
	s.gsn, s.haveGSN = adv.GSN, true
	var fire []func()
	if changed && !s.closed {
		for _, sub := range s.subs {
			if sub.c.Properties&(hap.PropEventsDisconnected|hap.PropBroadcast) != 0 {
				fire = append(fire, sub.notify)
			}
		}
	}
	s.mu.Unlock()

	if changed {
		s.logger.Debug("global state number changed", "gsn", adv.GSN, "notified", len(fire))
	}
	for _, fn := range fire {
		fn()
	}
}

// Close implements bridge.SubscriptionManager.
func (s *Subscriptions) Close() error {
	s.mu.Lock()
	s.closed = true
	s.subs = make(map[hap.Address]*subscription)
	s.mu.Unlock()
	return nil
}
