// Package config loads the interceptor configuration from an optional .env
// file, a YAML file and environment variables. It defines the candidate
// backend list, the API prefix, the canonical origin, the per-attempt timeout
// and the lifecycle cache namespace.
package config
