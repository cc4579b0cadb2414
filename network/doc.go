// Package network publishes engine results over ZeroMQ.
//
// A Publisher binds a PUB socket and implements engine.Sink, so it can sit
// next to the text and Arrow sinks behind an engine.MultiSink. Subscribers
// receive one two-frame message per result: the topic and a JSON body.
package network
