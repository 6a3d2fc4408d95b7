package script

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// ScriptError is a failure raised while compiling or running a host script.
// It is logged by the host and never closes the connection.
type ScriptError struct {
	Script string
	Err    error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %s: %v", e.Script, e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// unwrapException returns the Go error a native function threw, when err
// carries one, and err otherwise.
func unwrapException(err error) error {
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		return err
	}
	obj, ok := ex.Value().(*goja.Object)
	if !ok {
		return err
	}
	inner := obj.Get("value")
	if inner == nil {
		return err
	}
	if goErr, ok := inner.Export().(error); ok {
		return goErr
	}
	return err
}
