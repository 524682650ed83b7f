// Package handler is the interception boundary. It decides whether a request
// is in scope, hands in-scope requests to the failover forwarder once the
// lifecycle has claimed control, relays everything else untouched, and
// guarantees the caller always receives an HTTP response.
package handler
