// Package continuation parks logical threads of server code while they wait
// for a browser to answer a request, and wakes them with the answer.
//
// A logical thread is an ordinary goroutine. When it needs a value only the
// client can provide (a DOM read, a created element, a client-held storage
// entry, a client function result) it calls Scheduler.Suspend. The scheduler
// allocates a correlation ID, sends the request through the Target, and
// blocks the goroutine on a one-shot channel. The connection's read loop
// hands the client's reply to Scheduler.Resume, which wakes exactly that
// goroutine with exactly that value.
//
// Every pending call ends exactly once: resumed with the client's value, or
// discarded because the connection went away (ErrConnectionLost), the
// configured timeout elapsed (ErrTimeout), or the caller's context ended.
// A discarded call never observes a value, and a reply arriving after its
// call was discarded is reported as ErrUnmatchedReply.
//
// At most one call is pending per target at a time. A second thread that
// needs the same target waits for the first call to end before its request
// is sent.
package continuation
