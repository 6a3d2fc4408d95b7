// Package dev reloads host scripts while jj serves them.
//
// A Watcher polls script files for changes. The Reloader recompiles a
// changed script, swaps it into the hosts that run it and sends jj-reload
// to their pages, which reconnect and run the new version. A script that
// no longer compiles is reported and the previous version keeps serving.
package dev
