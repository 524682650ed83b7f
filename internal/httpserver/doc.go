// Package httpserver runs the interceptor's listener with validated
// addresses, timeouts sized for failover, and graceful shutdown.
package httpserver
