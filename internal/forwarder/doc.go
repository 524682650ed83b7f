// Package forwarder implements the failover forwarding routine. An
// intercepted request is attempted against each candidate backend in
// priority order, one at a time, until a candidate produces an HTTP
// response. Any response, whatever its status code, ends the loop; only
// transport-level failures (refused connections, timeouts, broken reads)
// move on to the next candidate. When every candidate fails a structured
// 503 payload is synthesized.
package forwarder
