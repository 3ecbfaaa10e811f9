// Package netobject implements fleetwork's net-object registration (spec
// §4.7.6, component C9): shipping a user-defined class's methods out to
// every worker before any instance of it can be carried inside a task's
// arguments.
//
// The original source relies on a runtime that can pickle a class's
// methods as executable bytecode. Go has no analogue, so per spec §9's
// guidance for cross-address-space callable transport, a ClassBundle's
// methods are not code at all: they are string ids into the same
// function registry (pkg/executor.Registry) task targets already use.
// Registering a class means "here are the function ids that implement
// this class's methods"; resolving an instance's method means "look up
// this class's bundle, then look up the named function id in it".
package netobject
