// Package server runs jj hosts: server-side page programs whose code reads
// and writes the DOM of every connected browser.
//
// # Architecture
//
//   - Server: HTTP/WebSocket entry point, owns hosts, the continuation
//     scheduler, metrics and the idle connection tracker
//   - Host: one page program with its connected clients (Registry),
//     lifecycle handlers and event handlers
//   - Connection: one live WebSocket, with its outbound batch, bound event
//     handlers and per-client storage
//   - Context: the explicit execution context handed to every handler; it
//     names the current connection that DOM operations target
//
// # Execution Model
//
// Every handler runs as a logical thread on its own goroutine. Operations
// that need an answer from the browser (Get, Create, Invoke, Retrieve)
// park the goroutine in the continuation scheduler until the reply arrives;
// the connection's read loop delivers replies directly, never through the
// event queue.
//
// Events from one connection are dispatched in order. A connection's next
// event starts once the previous handler completes or parks.
//
// # Broadcast
//
// Context.Broadcast runs a function once per live connection of the host,
// rebinding the current connection for each run and restoring it when done.
// A failure on one connection is recorded and the remaining connections are
// still visited.
//
// # Connection Goroutines
//
// Each connection runs three goroutines:
//   - ReadLoop: decodes frames, answers jj-hi, resumes suspended calls, queues events
//   - EventLoop: dispatches queued events in order
//   - WriteLoop: sends jj-hi heartbeats
package server
