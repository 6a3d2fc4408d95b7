package script

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/dop251/goja"
	"github.com/jibbrjabbr/jj/pkg/protocol"
	"github.com/jibbrjabbr/jj/pkg/server"
)

// runtime is the script environment of one connection. A goja.Runtime is
// not safe for concurrent use, so every entry holds sem until the script
// returns, including while it is parked on a client reply.
type runtime struct {
	name   string
	vm     *goja.Runtime
	logger *slog.Logger
	sem    chan struct{}

	// ctx is the execution currently inside the runtime.
	ctx *server.Context

	onConnect    []goja.Callable
	onDisconnect []goja.Callable
}

func newRuntime(name string, logger *slog.Logger) *runtime {
	r := &runtime{
		name:   name,
		vm:     goja.New(),
		logger: logger,
		sem:    make(chan struct{}, 1),
	}
	r.install()
	return r
}

func (r *runtime) lock()   { r.sem <- struct{}{} }
func (r *runtime) unlock() { <-r.sem }

// run enters the runtime on behalf of ctx. Waiting for another execution
// to leave does not hold up the connection's event dispatch.
func (r *runtime) run(ctx *server.Context, fn func() error) error {
	if err := ctx.Block(r.lock); err != nil {
		r.unlock()
		return err
	}
	defer r.unlock()

	prev := r.ctx
	r.ctx = ctx
	defer func() { r.ctx = prev }()

	if err := fn(); err != nil {
		return &ScriptError{Script: r.name, Err: unwrapException(err)}
	}
	return nil
}

func (r *runtime) callAll(fns []goja.Callable) error {
	for _, fn := range fns {
		if _, err := fn(goja.Undefined()); err != nil {
			return err
		}
	}
	return nil
}

// throw raises err as a JavaScript exception. Only valid inside a native
// function called from script.
func (r *runtime) throw(err error) {
	panic(r.vm.NewGoError(err))
}

func (r *runtime) check(err error) {
	if err != nil {
		r.throw(err)
	}
}

// export converts a script value for the wire.
func (r *runtime) export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

func (r *runtime) exportArgs(args []goja.Value) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = r.export(a)
	}
	return out
}

// toJS converts a wire value for the script. Absent values are undefined.
func (r *runtime) toJS(v protocol.Value) goja.Value {
	if v.IsAbsent() {
		return goja.Undefined()
	}
	var x any
	if err := v.Decode(&x); err != nil {
		r.throw(err)
	}
	return r.vm.ToValue(x)
}

func (r *runtime) function(arg goja.Value, op string) goja.Callable {
	fn, ok := goja.AssertFunction(arg)
	if !ok {
		r.throw(&server.UsageError{Op: op, Err: server.ErrNotAFunction})
	}
	return fn
}

func (r *runtime) install() {
	vm := r.vm
	vm.Set("$", r.dollar())
	vm.Set("broadcast", r.broadcast)
	vm.Set("clientStorage", vm.NewDynamicObject(&storageObject{r: r}))
	vm.Set("fStore", func(call goja.FunctionCall) goja.Value {
		v, err := r.ctx.Store(call.Argument(0).String(), r.export(call.Argument(1)))
		r.check(err)
		return r.toJS(v)
	})
	vm.Set("fRetrieve", func(call goja.FunctionCall) goja.Value {
		v, found, err := r.ctx.Retrieve(call.Argument(0).String())
		r.check(err)
		if !found {
			return goja.Undefined()
		}
		return r.toJS(v)
	})
	vm.Set("clientCall", func(call goja.FunctionCall) goja.Value {
		r.check(r.ctx.Call(call.Argument(0).String(), r.exportArgs(tail(call.Arguments))...))
		return goja.Undefined()
	})
	vm.Set("clientInvoke", func(call goja.FunctionCall) goja.Value {
		v, err := r.ctx.Invoke(call.Argument(0).String(), r.exportArgs(tail(call.Arguments))...)
		r.check(err)
		return r.toJS(v)
	})
	vm.Set("clientConnected", func(call goja.FunctionCall) goja.Value {
		r.onConnect = append(r.onConnect, r.function(call.Argument(0), "clientConnected"))
		return goja.Undefined()
	})
	vm.Set("clientDisconnected", func(call goja.FunctionCall) goja.Value {
		r.onDisconnect = append(r.onDisconnect, r.function(call.Argument(0), "clientDisconnected"))
		return goja.Undefined()
	})
	vm.Set("console", r.console())
}

func tail(args []goja.Value) []goja.Value {
	if len(args) == 0 {
		return nil
	}
	return args[1:]
}

// broadcast runs its function argument once for every live connection.
// Failures on single connections are logged by the host and do not throw.
func (r *runtime) broadcast(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		r.check(server.Broadcast(r.ctx, nil))
		return goja.Undefined()
	}
	err := server.Broadcast(r.ctx, func(*server.Context) error {
		if _, err := fn(goja.Undefined()); err != nil {
			return &ScriptError{Script: r.name, Err: unwrapException(err)}
		}
		return nil
	})
	var be *server.BroadcastError
	if errors.As(err, &be) {
		return goja.Undefined()
	}
	r.check(err)
	return goja.Undefined()
}

func (r *runtime) console() *goja.Object {
	console := r.vm.NewObject()
	level := map[string]slog.Level{
		"log":   slog.LevelInfo,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, lvl := range level {
		lvl := lvl
		console.Set(name, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			r.logger.Log(r.stdContext(), lvl, strings.Join(parts, " "))
			return goja.Undefined()
		})
	}
	return console
}

func (r *runtime) stdContext() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx.StdContext()
}
