// Package logging provides a small, nil-safe, leveled logger used
// throughout the backup engine for diagnostics (one-time warnings,
// cross-device fallback notices, auto-reclaim failures) without making
// those diagnostics part of any correctness decision.
package logging

// RootLogger is the root logger from which all other loggers derive via
// Sublogger. Components should generally accept a *Logger rather than
// reaching for this global directly, but it's provided for convenience in
// CLI wiring.
var RootLogger = NewLogger(LevelInfo)
