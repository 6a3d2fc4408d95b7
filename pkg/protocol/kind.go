package protocol

// Kind identifies a message in the vocabulary.
type Kind uint8

const (
	KindInvalid  Kind = iota
	KindBind          // server→client: attach an event listener
	KindUnbind        // server→client: detach an event listener
	KindGet           // server→client request: read a DOM value
	KindSet           // server→client: write a DOM value
	KindCreate        // server→client request: create an element from HTML
	KindAppend        // server→client: append one selection to another
	KindStore         // server→client: write client-held storage
	KindRetrieve      // server→client request: read client-held storage
	KindCall          // server→client: call a client function, no answer
	KindInvoke        // server→client request: call a client function for its result
	KindResult        // client→server: answer to a request
	KindElement       // client→server: answer to create, naming the new element
	KindEvent         // client→server: a bound DOM event fired
)

var kindNames = [...]string{
	KindInvalid:  "invalid",
	KindBind:     "bind",
	KindUnbind:   "unbind",
	KindGet:      "get",
	KindSet:      "set",
	KindCreate:   "create",
	KindAppend:   "append",
	KindStore:    "store",
	KindRetrieve: "retrieve",
	KindCall:     "call",
	KindInvoke:   "invoke",
	KindResult:   "result",
	KindElement:  "element",
	KindEvent:    "event",
}

// String returns the wire key of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind returns the kind for a wire key, or KindInvalid.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if Kind(k) != KindInvalid && name == s {
			return Kind(k)
		}
	}
	return KindInvalid
}

// Outbound reports whether the kind is sent by the server.
func (k Kind) Outbound() bool {
	return k >= KindBind && k <= KindInvoke
}

// Inbound reports whether the kind is sent by the client.
func (k Kind) Inbound() bool {
	return k >= KindResult && k <= KindEvent
}
