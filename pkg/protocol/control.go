package protocol

// Control is a raw text token exchanged outside the JSON vocabulary.
type Control uint8

const (
	ControlNone   Control = iota
	ControlHi             // liveness probe; the peer answers with ControlYo
	ControlYo             // answer to ControlHi
	ControlBye            // orderly close
	ControlReload         // server asks the client to reload the page
)

var controlTokens = [...]string{
	ControlHi:     "jj-hi",
	ControlYo:     "jj-yo",
	ControlBye:    "jj-bye",
	ControlReload: "jj-reload",
}

// Token returns the wire text of the control token.
func (c Control) Token() string {
	if c > ControlNone && int(c) < len(controlTokens) {
		return controlTokens[c]
	}
	return ""
}

// String returns the string representation of the control token.
func (c Control) String() string {
	switch c {
	case ControlNone:
		return "None"
	case ControlHi:
		return "Hi"
	case ControlYo:
		return "Yo"
	case ControlBye:
		return "Bye"
	case ControlReload:
		return "Reload"
	default:
		return "Unknown"
	}
}

// ParseControl matches text against the control tokens verbatim.
func ParseControl(text string) (Control, bool) {
	// All tokens share the prefix; reject JSON without scanning the table.
	if len(text) < 5 || text[0] != 'j' {
		return ControlNone, false
	}
	for c := ControlHi; int(c) < len(controlTokens); c++ {
		if controlTokens[c] == text {
			return c, true
		}
	}
	return ControlNone, false
}
