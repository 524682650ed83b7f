// Package lifecycle owns activation of the interceptor. Install is the
// prepare phase and has no side effects; Activate is the commit phase that
// deletes every cache namespace left by previous versions and claims
// control, after which the interceptor forwards in-scope traffic.
package lifecycle
