package script

import (
	"os"
	"path/filepath"

	"github.com/dop251/goja"
)

// Program is a compiled host script. It is safe to run on many runtimes.
type Program struct {
	name string
	prog *goja.Program
}

// Compile parses source as a host script called name.
func Compile(name, source string) (*Program, error) {
	prog, err := goja.Compile(name, source, false)
	if err != nil {
		return nil, &ScriptError{Script: name, Err: err}
	}
	return &Program{name: name, prog: prog}, nil
}

// Load reads and compiles the script at path.
func Load(path string) (*Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Compile(filepath.Base(path), string(src))
}

// Name returns the script name used in errors.
func (p *Program) Name() string {
	return p.name
}
