// Package script runs JavaScript host scripts against a server.Host.
//
// Each connection gets its own goja runtime. The host script runs once per
// connection when it attaches, with these globals installed:
//
//	$(selector)            selection with val, text, html, attr, prop, on, off, append
//	$.create(html, ...)    builds an element on the client and selects it
//	broadcast(fn)          runs fn once per live connection of the host
//	clientStorage          per-connection storage object
//	fStore(key, value)     stores and mirrors a value to the browser
//	fRetrieve(key)         reads a stored value, asking the browser if needed
//	clientCall(name, ...)  calls a client function without waiting
//	clientInvoke(name, ...) calls a client function and returns its result
//	clientConnected(fn)    runs fn once the script has run on connect
//	clientDisconnected(fn) runs fn when the connection closes
//	console                log, info, warn and error to the host logger
//
// A getter such as $("#name").val() parks the script until the client
// answers; other events from the same connection wait for the runtime.
package script
