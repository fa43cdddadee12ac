// Package logging provides structured logging for Gray Logic Discovery.
//
// It wraps log/slog with service defaults (service name, version) and
// configuration-driven level, format, and output selection.
package logging
