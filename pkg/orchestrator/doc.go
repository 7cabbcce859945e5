// Package orchestrator wires the IKE and kernel clients to the dispatcher,
// the publisher and the error listener, persists what they produce and
// keeps the error listener connected.
//
// Startup order is IKE client, dispatcher, publisher, event broker, error
// listener. A listener that cannot connect does not fail startup: a
// supervisor goroutine notices the listener is down and reconnects it with
// exponential backoff. Shutdown runs in reverse and drains the dispatcher.
package orchestrator
