// Package protocol implements the JSON message vocabulary spoken between a
// jj server and the browser runtime over a WebSocket connection.
//
// # Wire Format
//
// Every structured message is a JSON object with exactly one key naming the
// message kind; the value carries that kind's fields:
//
//	{"get":{"id":"42","selector":"#name","type":"val"}}
//	{"result":{"id":"42","value":"hello"}}
//
// The server flushes outbound messages as a JSON array, so a single frame
// may carry many messages:
//
//	[{"set":{"selector":"#count","type":"text","value":3}},{"call":{"name":"beep","args":"[]"}}]
//
// # Control Tokens
//
// A small set of raw text tokens (jj-hi, jj-yo, jj-bye, jj-reload) travel
// outside the JSON vocabulary. They are recognized verbatim before any JSON
// parsing is attempted; see Control.
//
// # Correlation
//
// Requests (get, create, retrieve, invoke) carry an ID allocated by the
// server. The client answers with a Result or Element carrying the same ID.
// IDs are decimal strings of non-zero unsigned integers.
//
// # Decoding
//
// Decode parses an inbound frame once into a Control token or a slice of
// typed Messages. Malformed payloads and unknown kinds are reported as
// *DecodeError values carrying the offending payload, so callers can log and
// keep the connection open.
package protocol
