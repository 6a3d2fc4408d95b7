package script

import (
	"github.com/dop251/goja"
	"github.com/jibbrjabbr/jj/pkg/protocol"
	"github.com/jibbrjabbr/jj/pkg/server"
)

// dollar builds the $ function and its create helper.
func (r *runtime) dollar() *goja.Object {
	dollar := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return r.selection(call.Argument(0).String())
	}).(*goja.Object)

	dollar.Set("create", func(call goja.FunctionCall) goja.Value {
		sel, err := r.ctx.Create(call.Argument(0).String(), r.exportArgs(tail(call.Arguments))...)
		r.check(err)
		return r.selection(sel)
	})
	return dollar
}

// selection returns the script object for selector. Accessors called
// without a value read from the client; with a value they write and return
// the selection for chaining.
func (r *runtime) selection(selector string) *goja.Object {
	obj := r.vm.NewObject()
	obj.Set("selector", selector)

	for _, typ := range []string{"val", "text", "html"} {
		typ := typ
		obj.Set(typ, func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) == 0 {
				v, err := r.ctx.Get(selector, typ)
				r.check(err)
				return r.toJS(v)
			}
			r.check(r.ctx.Set(selector, typ, r.export(call.Argument(0))))
			return obj
		})
	}
	for _, typ := range []string{"attr", "prop"} {
		typ := typ
		obj.Set(typ, func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			if len(call.Arguments) < 2 {
				v, err := r.ctx.GetNamed(selector, typ, name)
				r.check(err)
				return r.toJS(v)
			}
			r.check(r.ctx.SetNamed(selector, typ, name, r.export(call.Argument(1))))
			return obj
		})
	}

	// on(type, fn) listens on the selection itself; on(type, child, fn)
	// listens on matches of child inside it.
	obj.Set("on", func(call goja.FunctionCall) goja.Value {
		typ := call.Argument(0).String()
		target, delegate, fnArg := selector, "", call.Argument(1)
		if len(call.Arguments) > 2 {
			target, delegate, fnArg = call.Argument(1).String(), selector, call.Argument(2)
		}
		fn := r.function(fnArg, "on")
		r.check(r.ctx.Bind(target, delegate, typ, r.handler(fn)))
		return obj
	})
	obj.Set("off", func(call goja.FunctionCall) goja.Value {
		typ := call.Argument(0).String()
		target, delegate := selector, ""
		if len(call.Arguments) > 1 {
			target, delegate = call.Argument(1).String(), selector
		}
		r.check(r.ctx.Unbind(target, delegate, typ))
		return obj
	})
	obj.Set("append", func(call goja.FunctionCall) goja.Value {
		r.check(r.ctx.Append(selector, r.selectorOf(call.Argument(0))))
		return obj
	})
	return obj
}

// selectorOf accepts a selection object or a selector string.
func (r *runtime) selectorOf(v goja.Value) string {
	if obj, ok := v.(*goja.Object); ok {
		if sel := obj.Get("selector"); sel != nil {
			return sel.String()
		}
	}
	return v.String()
}

// handler adapts a script function to a server handler for the events of
// this runtime's connection.
func (r *runtime) handler(fn goja.Callable) server.Handler {
	return func(ctx *server.Context) error {
		return r.run(ctx, func() error {
			_, err := fn(goja.Undefined(), r.event(ctx.Event()))
			return err
		})
	}
}

func (r *runtime) event(ev *protocol.Event) goja.Value {
	if ev == nil {
		return goja.Undefined()
	}
	obj := r.vm.NewObject()
	obj.Set("type", ev.Type)
	obj.Set("selector", ev.Selector)
	obj.Set("context", ev.Context)
	obj.Set("which", ev.Which)
	obj.Set("target", ev.Target)
	form := r.vm.NewObject()
	for _, name := range ev.Form.Names() {
		if values := ev.Form.Values(name); len(values) > 1 {
			form.Set(name, values)
		} else {
			form.Set(name, values[0])
		}
	}
	obj.Set("form", form)
	return obj
}

// storageObject exposes the current connection's storage as a plain
// object. Every read and write goes through the JSON form.
type storageObject struct {
	r *runtime
}

func (s *storageObject) storage() *server.ClientStorage {
	st, err := s.r.ctx.ClientStorage()
	if err != nil {
		return nil
	}
	return st
}

func (s *storageObject) Get(key string) goja.Value {
	st := s.storage()
	if st == nil {
		return goja.Undefined()
	}
	v, ok := st.Value(key)
	if !ok {
		return goja.Undefined()
	}
	return s.r.toJS(v)
}

func (s *storageObject) Set(key string, val goja.Value) bool {
	_, err := s.r.ctx.Store(key, s.r.export(val))
	if err != nil {
		s.r.logger.Warn("clientStorage write failed", "key", key, "error", err)
		return false
	}
	return true
}

func (s *storageObject) Has(key string) bool {
	st := s.storage()
	if st == nil {
		return false
	}
	_, ok := st.Value(key)
	return ok
}

func (s *storageObject) Delete(key string) bool {
	if st := s.storage(); st != nil {
		st.Delete(key)
	}
	return true
}

func (s *storageObject) Keys() []string {
	st := s.storage()
	if st == nil {
		return nil
	}
	return st.Keys()
}
