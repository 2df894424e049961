//go:build !no_automation

package automation

import (
	"context"
	"fmt"
	"time"

	"hap-ble-bridge/internal/bridge"
	"hap-ble-bridge/internal/hap"

	lua "github.com/yuin/gopher-lua"
)

const (
	maxHandlersPerScript = 100
	opTimeout            = 10 * time.Second
)

// registerHAPModule registers the `hap` global table in a Lua state.
func registerHAPModule(L *lua.LState, vm *scriptVM, e *Engine, logs *logSink) {
	mod := L.NewTable()
	mod.RawSetString("on", L.NewFunction(func(L *lua.LState) int {
		return hapOn(L, vm)
	}))
	mod.RawSetString("identify", L.NewFunction(func(L *lua.LState) int {
		return hapIdentify(L, vm, e)
	}))
	mod.RawSetString("read", L.NewFunction(func(L *lua.LState) int {
		return hapRead(L, vm, e)
	}))
	mod.RawSetString("write", L.NewFunction(func(L *lua.LState) int {
		return hapWrite(L, vm, e)
	}))
	mod.RawSetString("accessories", L.NewFunction(func(L *lua.LState) int {
		return hapAccessories(L, e)
	}))
	mod.RawSetString("after", L.NewFunction(func(L *lua.LState) int {
		return hapAfter(L, vm, e)
	}))
	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		logs.add("info", L.CheckString(1))
		return 0
	}))
	L.SetGlobal("hap", mod)
}

// hap.on(event, filter, callback)
func hapOn(L *lua.LState, vm *scriptVM) int {
	h := luaEventHandler{eventType: L.CheckString(1)}
	filter := L.OptTable(2, nil)
	h.fn = L.CheckFunction(3)

	if filter != nil {
		if v := filter.RawGetString("accessory"); v != lua.LNil {
			h.accessory = v.String()
		}
		if v := filter.RawGetString("service"); v != lua.LNil {
			h.service = normalizeUUID(v.String())
		}
		if v := filter.RawGetString("characteristic"); v != lua.LNil {
			h.characteristic = normalizeUUID(v.String())
		}
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if len(vm.handlers) >= maxHandlersPerScript {
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	return 0
}

// normalizeUUID maps any accepted UUID spelling to the short form used in
// event data.
func normalizeUUID(s string) string {
	id, err := hap.ParseUUID(s)
	if err != nil {
		return s
	}
	return hap.ShortName(id)
}

// hap.identify(name) -> ok, err
func hapIdentify(L *lua.LState, vm *scriptVM, e *Engine) int {
	acc, err := e.accessory(L.CheckString(1))
	if err != nil {
		return pushResult(L, lua.LFalse, err)
	}
	ctx, cancel := context.WithTimeout(vm.ctx, opTimeout)
	defer cancel()

	errc := make(chan error, 1)
	acc.Identify(ctx, func(err error) { errc <- err })
	select {
	case err = <-errc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	return pushResult(L, lua.LBool(err == nil), err)
}

// hap.read(name, service, characteristic) -> value, err
func hapRead(L *lua.LState, vm *scriptVM, e *Engine) int {
	acc, addr, err := e.target(L.CheckString(1), L.CheckString(2), L.CheckString(3))
	if err != nil {
		return pushResult(L, lua.LNil, err)
	}
	ctx, cancel := context.WithTimeout(vm.ctx, opTimeout)
	defer cancel()

	v, err := acc.ReadCharacteristic(ctx, addr)
	if err != nil {
		e.logger.Warn("script read failed", "accessory", acc.Name(), "characteristic", addr, "err", err)
		return pushResult(L, lua.LNil, err)
	}
	return pushResult(L, goToLua(L, v), nil)
}

// hap.write(name, service, characteristic, value) -> ok, err
func hapWrite(L *lua.LState, vm *scriptVM, e *Engine) int {
	acc, addr, err := e.target(L.CheckString(1), L.CheckString(2), L.CheckString(3))
	if err != nil {
		return pushResult(L, lua.LFalse, err)
	}
	v := luaToGo(L.CheckAny(4))
	ctx, cancel := context.WithTimeout(vm.ctx, opTimeout)
	defer cancel()

	if err := acc.WriteCharacteristic(ctx, addr, v); err != nil {
		e.logger.Warn("script write failed", "accessory", acc.Name(), "characteristic", addr, "err", err)
		return pushResult(L, lua.LFalse, err)
	}
	return pushResult(L, lua.LTrue, nil)
}

// pushResult pushes the Lua (value, err) pair.
func pushResult(L *lua.LState, v lua.LValue, err error) int {
	L.Push(v)
	if err != nil {
		L.Push(lua.LString(err.Error()))
	} else {
		L.Push(lua.LNil)
	}
	return 2
}

// hap.accessories() -> list of {name, started, reachability, link_quality}
func hapAccessories(L *lua.LState, e *Engine) int {
	tbl := L.NewTable()
	for i, acc := range e.bridge.Accessories() {
		t := L.NewTable()
		t.RawSetString("name", lua.LString(acc.Name()))
		t.RawSetString("started", lua.LBool(acc.Started()))
		t.RawSetString("reachable", lua.LBool(acc.Reachability() == bridge.Reachable))
		t.RawSetString("reachability", lua.LString(acc.Reachability().String()))
		t.RawSetString("link_quality", lua.LNumber(acc.LinkQuality()))
		tbl.RawSetInt(i+1, t)
	}
	L.Push(tbl)
	return 1
}

// hap.after(seconds, callback)
func hapAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("after callback error", "err", err)
			}
		}:
		default:
			e.logger.Warn("after: command channel full")
		}
	}()
	return 0
}

func (e *Engine) accessory(name string) (*bridge.Accessory, error) {
	acc, ok := e.bridge.Accessory(name)
	if !ok {
		return nil, fmt.Errorf("unknown accessory %q", name)
	}
	return acc, nil
}

func (e *Engine) target(name, service, characteristic string) (*bridge.Accessory, hap.Address, error) {
	acc, err := e.accessory(name)
	if err != nil {
		return nil, hap.Address{}, err
	}
	addr, err := hap.ParseAddress(service, characteristic)
	if err != nil {
		return nil, hap.Address{}, err
	}
	return acc, addr, nil
}
