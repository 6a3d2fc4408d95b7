package server

import (
	"github.com/jibbrjabbr/jj/pkg/protocol"
)

// Get reads a DOM value of the first element matching selector on the
// current connection. typ names the accessor: val, text, html.
func (c *Context) Get(selector, typ string) (protocol.Value, error) {
	return c.suspend("get", &protocol.Get{Selector: selector, Type: typ})
}

// GetNamed reads a named DOM value such as an attribute or property.
func (c *Context) GetNamed(selector, typ, name string) (protocol.Value, error) {
	return c.suspend("get", &protocol.Get{Selector: selector, Type: typ, Name: name})
}

// Set writes a DOM value on the current connection.
func (c *Context) Set(selector, typ string, v any) error {
	return c.SetNamed(selector, typ, "", v)
}

// SetNamed writes a named DOM value such as an attribute or property.
func (c *Context) SetNamed(selector, typ, name string, v any) error {
	val, err := protocol.NewValue(v)
	if err != nil {
		return err
	}
	return c.send("set", &protocol.Set{Selector: selector, Type: typ, Name: name, Value: val})
}

// Create builds an element from html on the current connection and returns
// a selector for it.
func (c *Context) Create(html string, args ...any) (string, error) {
	vals, err := values(args)
	if err != nil {
		return "", err
	}
	v, err := c.suspend("create", &protocol.Create{HTML: html, Args: vals})
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// Append moves the child selection under parent.
func (c *Context) Append(parent, child string) error {
	return c.send("append", &protocol.Append{Parent: parent, Child: child})
}

// Bind asks the current connection to report typ events on selector and
// routes them to h. A non-empty delegate scopes the listener to matches of
// selector inside delegate.
func (c *Context) Bind(selector, delegate, typ string, h Handler) error {
	conn, err := c.requireConnection("bind")
	if err != nil {
		return err
	}
	if h != nil {
		conn.bind(protocol.EventKey(typ, selector, delegate), h)
	}
	return c.send("bind", &protocol.Bind{Selector: selector, Context: delegate, Type: typ})
}

// Unbind removes a listener installed by Bind.
func (c *Context) Unbind(selector, delegate, typ string) error {
	conn, err := c.requireConnection("unbind")
	if err != nil {
		return err
	}
	conn.unbind(protocol.EventKey(typ, selector, delegate))
	return c.send("unbind", &protocol.Unbind{Selector: selector, Context: delegate, Type: typ})
}

// Call runs a named client function and does not wait for it.
func (c *Context) Call(name string, args ...any) error {
	vals, err := values(args)
	if err != nil {
		return err
	}
	return c.send("call", &protocol.Call{Name: name, Args: vals})
}

// Invoke runs a named client function and returns its result.
func (c *Context) Invoke(name string, args ...any) (protocol.Value, error) {
	vals, err := values(args)
	if err != nil {
		return nil, err
	}
	return c.suspend("invoke", &protocol.Invoke{Name: name, Args: vals})
}

// Reload asks the current connection to reload the page.
func (c *Context) Reload() error {
	conn, err := c.requireConnection("reload")
	if err != nil {
		return err
	}
	if err := conn.Flush(); err != nil {
		return err
	}
	return conn.SendControl(protocol.ControlReload)
}

func values(args []any) ([]protocol.Value, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]protocol.Value, len(args))
	for i, a := range args {
		v, err := protocol.NewValue(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Selection is a selector bound to an execution, in the style of a jQuery
// object. Getters park until the current connection answers.
type Selection struct {
	ctx      *Context
	selector string
}

// Select returns a Selection for selector.
func (c *Context) Select(selector string) *Selection {
	return &Selection{ctx: c, selector: selector}
}

// Selector returns the selector text.
func (s *Selection) Selector() string { return s.selector }

// Val reads the form value.
func (s *Selection) Val() (protocol.Value, error) { return s.ctx.Get(s.selector, "val") }

// SetVal writes the form value.
func (s *Selection) SetVal(v any) error { return s.ctx.Set(s.selector, "val", v) }

// Text reads the text content.
func (s *Selection) Text() (protocol.Value, error) { return s.ctx.Get(s.selector, "text") }

// SetText writes the text content.
func (s *Selection) SetText(v any) error { return s.ctx.Set(s.selector, "text", v) }

// HTML reads the inner HTML.
func (s *Selection) HTML() (protocol.Value, error) { return s.ctx.Get(s.selector, "html") }

// SetHTML writes the inner HTML.
func (s *Selection) SetHTML(v any) error { return s.ctx.Set(s.selector, "html", v) }

// Attr reads an attribute.
func (s *Selection) Attr(name string) (protocol.Value, error) {
	return s.ctx.GetNamed(s.selector, "attr", name)
}

// SetAttr writes an attribute.
func (s *Selection) SetAttr(name string, v any) error {
	return s.ctx.SetNamed(s.selector, "attr", name, v)
}

// Prop reads a DOM property.
func (s *Selection) Prop(name string) (protocol.Value, error) {
	return s.ctx.GetNamed(s.selector, "prop", name)
}

// SetProp writes a DOM property.
func (s *Selection) SetProp(name string, v any) error {
	return s.ctx.SetNamed(s.selector, "prop", name, v)
}

// On binds h to typ events on the selection.
func (s *Selection) On(typ string, h Handler) error {
	return s.ctx.Bind(s.selector, "", typ, h)
}

// Off unbinds typ events on the selection.
func (s *Selection) Off(typ string) error {
	return s.ctx.Unbind(s.selector, "", typ)
}

// Append moves child under the selection.
func (s *Selection) Append(child *Selection) error {
	return s.ctx.Append(s.selector, child.selector)
}
