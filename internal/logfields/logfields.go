package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyStage      = "stage"
	KeyTarget     = "target"
	KeySubArch    = "subarch"
	KeyVersion    = "version_stamp"
	KeyMount      = "mount"
	KeyVerb       = "verb"
	KeyPath       = "path"
	KeySource     = "source"
	KeyDest       = "dest"
	KeyReason     = "reason"
	KeyDurationMS = "duration_ms"
	KeyCount      = "count"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Target(t string) slog.Attr       { return slog.String(KeyTarget, t) }
func SubArch(a string) slog.Attr      { return slog.String(KeySubArch, a) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func Mount(name string) slog.Attr     { return slog.String(KeyMount, name) }
func Verb(v string) slog.Attr         { return slog.String(KeyVerb, v) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Source(s string) slog.Attr       { return slog.String(KeySource, s) }
func Dest(d string) slog.Attr         { return slog.String(KeyDest, d) }
func Reason(r string) slog.Attr       { return slog.String(KeyReason, r) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
