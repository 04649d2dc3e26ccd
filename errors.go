package adchecklist

import (
	"io"
	"log/slog"

	"github.com/zero-day-ai/adchecklist/auditerr"
	"github.com/zero-day-ai/adchecklist/report"
)

// Process exit codes used by the command line.
const (
	// ExitOK means the run completed without errors.
	ExitOK = 0

	// ExitFatal means the run stopped before writing output.
	ExitFatal = 1

	// ExitPartial means output was written but some queries or rows failed.
	ExitPartial = 2
)

// ExitCode maps the outcome of Run to a process exit code.
func ExitCode(rep *report.Report, err error) int {
	switch {
	case err != nil:
		return ExitFatal
	case rep != nil && len(rep.Errors) > 0:
		return ExitPartial
	default:
		return ExitOK
	}
}

// IsFatal reports whether err stopped a run before output was written.
func IsFatal(err error) bool {
	return auditerr.IsFatal(err)
}

// CloseWithLog attempts to close the provided resource and logs any error
// at warning level. This is intended for use in defer statements to ensure
// cleanup errors are not silently ignored.
//
// The name parameter should describe the resource being closed (e.g., "etcd
// client", "redis publisher"). If logger is nil, slog.Default() is used.
//
// Example usage:
//
//	defer adchecklist.CloseWithLog(etcd, logger, "etcd client")
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
