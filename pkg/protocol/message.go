package protocol

import "strings"

// Message is one entry of the vocabulary. The set of implementations is
// closed: every Kind has exactly one message type.
type Message interface {
	Kind() Kind
}

// Request is an outbound message that expects a correlated reply.
type Request interface {
	Message
	RequestID() ID
	SetRequestID(ID)
}

// Reply is an inbound message answering a Request.
type Reply interface {
	Message
	ReplyID() ID
	ReplyValue() Value
}

// Bind asks the client to listen for Type events on Selector and report them
// as Event messages. A non-empty Context delegates the listener.
type Bind struct {
	Selector string `json:"selector"`
	Context  string `json:"context,omitempty"`
	Type     string `json:"type"`
}

// Unbind removes a listener installed by Bind.
type Unbind struct {
	Selector string `json:"selector"`
	Context  string `json:"context,omitempty"`
	Type     string `json:"type"`
}

// Get reads a DOM value. Type names the accessor (val, text, html, attr,
// prop, css, data); Name qualifies accessors that need one.
type Get struct {
	ID       ID     `json:"id"`
	Selector string `json:"selector"`
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
}

// Set writes a DOM value.
type Set struct {
	Selector string `json:"selector"`
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
	Value    Value  `json:"value"`
}

// Create builds an element from HTML. The client answers with an Element.
type Create struct {
	ID   ID      `json:"id"`
	HTML string  `json:"html"`
	Args []Value `json:"args,omitempty"`
}

// Append moves the Child selection under Parent.
type Append struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

// Store writes Key in client-held storage.
type Store struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// Retrieve reads Key from client-held storage.
type Retrieve struct {
	ID  ID     `json:"id"`
	Key string `json:"key"`
}

// Call runs a named client function and ignores its result.
type Call struct {
	Name string  `json:"name"`
	Args []Value `json:"args,omitempty"`
}

// Invoke runs a named client function and answers with its result.
type Invoke struct {
	ID   ID      `json:"id"`
	Name string  `json:"name"`
	Args []Value `json:"args,omitempty"`
}

// Result answers a Get, Retrieve or Invoke.
type Result struct {
	ID    ID    `json:"id"`
	Value Value `json:"value,omitempty"`
}

// Element answers a Create with a selector for the new element.
type Element struct {
	ID       ID     `json:"id"`
	Selector string `json:"selector"`
}

// FormField is one serialized form control sent with an event.
type FormField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Event reports a DOM event on a bound selector.
type Event struct {
	Type     string `json:"type"`
	Selector string `json:"selector"`
	Context  string `json:"context,omitempty"`
	Which    int    `json:"which,omitempty"`
	Target   string `json:"target,omitempty"`
	Form     Form   `json:"form,omitempty"`
}

func (*Bind) Kind() Kind     { return KindBind }
func (*Unbind) Kind() Kind   { return KindUnbind }
func (*Get) Kind() Kind      { return KindGet }
func (*Set) Kind() Kind      { return KindSet }
func (*Create) Kind() Kind   { return KindCreate }
func (*Append) Kind() Kind   { return KindAppend }
func (*Store) Kind() Kind    { return KindStore }
func (*Retrieve) Kind() Kind { return KindRetrieve }
func (*Call) Kind() Kind     { return KindCall }
func (*Invoke) Kind() Kind   { return KindInvoke }
func (*Result) Kind() Kind   { return KindResult }
func (*Element) Kind() Kind  { return KindElement }
func (*Event) Kind() Kind    { return KindEvent }

func (m *Get) RequestID() ID           { return m.ID }
func (m *Get) SetRequestID(id ID)      { m.ID = id }
func (m *Create) RequestID() ID        { return m.ID }
func (m *Create) SetRequestID(id ID)   { m.ID = id }
func (m *Retrieve) RequestID() ID      { return m.ID }
func (m *Retrieve) SetRequestID(id ID) { m.ID = id }
func (m *Invoke) RequestID() ID        { return m.ID }
func (m *Invoke) SetRequestID(id ID)   { m.ID = id }

func (m *Result) ReplyID() ID       { return m.ID }
func (m *Result) ReplyValue() Value { return m.Value }
func (m *Element) ReplyID() ID      { return m.ID }

// ReplyValue returns the new element's selector as a JSON string.
func (m *Element) ReplyValue() Value { return StringValue(m.Selector) }

// Key returns the handler key for the event; see EventKey.
func (e *Event) Key() string {
	return EventKey(e.Type, e.Selector, e.Context)
}

// FormValue returns the first form field named name.
func (e *Event) FormValue(name string) (string, bool) {
	return e.Form.Get(name)
}

// EventKey names a bound listener, e.g. "click(#send)" or, when delegated,
// "click(#list li)".
func EventKey(typ, selector, context string) string {
	var b strings.Builder
	b.Grow(len(typ) + len(selector) + len(context) + 3)
	b.WriteString(typ)
	b.WriteByte('(')
	if context != "" {
		b.WriteString(context)
		b.WriteByte(' ')
	}
	b.WriteString(selector)
	b.WriteByte(')')
	return b.String()
}

// newMessage returns a zero message for kind.
func newMessage(k Kind) Message {
	switch k {
	case KindBind:
		return &Bind{}
	case KindUnbind:
		return &Unbind{}
	case KindGet:
		return &Get{}
	case KindSet:
		return &Set{}
	case KindCreate:
		return &Create{}
	case KindAppend:
		return &Append{}
	case KindStore:
		return &Store{}
	case KindRetrieve:
		return &Retrieve{}
	case KindCall:
		return &Call{}
	case KindInvoke:
		return &Invoke{}
	case KindResult:
		return &Result{}
	case KindElement:
		return &Element{}
	case KindEvent:
		return &Event{}
	default:
		return nil
	}
}
