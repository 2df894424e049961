package hapble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"hap-ble-bridge/internal/bridge"
	"hap-ble-bridge/internal/hap"
	"hap-ble-bridge/internal/pairing"
)

// Executor runs procedures one at a time over the peripheral's session.
type Executor struct {
	p  *Peripheral
	mu sync.Mutex
}

// Run implements bridge.Executor. A transport failure drops the session so
// the next procedure reconnects.
func (e *Executor) Run(ctx context.Context, proc hap.Procedure) (any, error) {
	var res any
	err := e.withSession(ctx, func(s *Session) error {
		var err error
		res, err = proc.Execute(ctx, s)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", proc.Name(), err)
	}
	return res, nil
}

func (e *Executor) withSession(ctx context.Context, fn func(*Session) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.p.connect(ctx)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		if linkFailure(err) {
			e.p.drop(s)
		}
		return err
	}
	return nil
}

// linkFailure reports whether err came from the link rather than from an
// accessory-level status.
func linkFailure(err error) bool {
	var status *hap.StatusError
	var perr *pairing.Error
	return !errors.As(err, &status) && !errors.As(err, &perr)
}

type readProcedure struct{ c *hap.Characteristic }

func (r readProcedure) Name() string { return "read " + r.c.Address.String() }

func (r readProcedure) Execute(ctx context.Context, ch hap.Channel) (any, error) {
	raw, err := ch.ReadValue(ctx, r.c)
	if err != nil {
		return nil, err
	}
	return hap.DecodeValue(r.c.Format, raw)
}

type writeProcedure struct {
	c *hap.Characteristic
	v any
}

func (w writeProcedure) Name() string { return "write " + w.c.Address.String() }

func (w writeProcedure) Execute(ctx context.Context, ch hap.Channel) (any, error) {
	raw, err := hap.EncodeValue(w.c.Format, w.v)
	if err != nil {
		return nil, err
	}
	_, err = ch.WriteValue(ctx, w.c, raw, false)
	return nil, err
}

// Accessor reads and writes decoded characteristic values through an
// executor.
type Accessor struct {
	exec bridge.Executor
}

func (a *Accessor) Read(ctx context.Context, c *hap.Characteristic) (any, error) {
	return a.exec.Run(ctx, readProcedure{c: c})
}

func (a *Accessor) Write(ctx context.Context, c *hap.Characteristic, v any) error {
	_, err := a.exec.Run(ctx, writeProcedure{c: c, v: v})
	return err
}

// failedProcedure reports an error that prevented building a procedure.
type failedProcedure struct {
	name string
	err  error
}

func (f failedProcedure) Name() string { return f.name }

func (f failedProcedure) Execute(context.Context, hap.Channel) (any, error) {
	return nil, f.err
}
