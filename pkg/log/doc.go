// Package log provides structured logging for expedite components.
//
// The Logger interface carries typed Fields and is backed by log/slog.
// Components obtain scoped loggers via With(Component("dispatch")) so every
// line identifies its origin. RedirectStdLog routes stdlib log output (Pebble
// uses it) into the structured stream.
package log
