// Package backend models the configured candidate backends and the
// pass-through origin. A Candidate is an immutable base URL plus its origin
// policy; the Passthrough wraps a reverse proxy for out-of-scope traffic.
package backend
