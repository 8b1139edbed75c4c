// Package logging provides structured logging for mqfetch processes.
//
// This package wraps Go's log/slog to provide JSON-formatted logs. The
// dispatcher, each session worker and the client agent log through child
// loggers that carry session_id, channel and component attributes, so a
// single file can be filtered per session after the fact.
//
// # Thread Safety
//
// [Logger] is safe for concurrent use. Child loggers created via the With*
// methods share the parent's writer, and closing any of them closes the
// shared file once.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/lib/mqfetch", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	workerLog := logger.WithComponent("worker").WithSession(id).WithChannel(7)
//	workerLog.Info("streaming started", "path", "/tmp/hello.txt")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"streaming started","component":"worker","session_id":"sess-...","channel":7,"path":"/tmp/hello.txt"}
//
// # Log Rotation
//
// The dispatcher can run for a long time. [NewLoggerWithRotation] rotates the
// file by size using lumberjack:
//
//	logger, err := logging.NewLoggerWithRotation(dir, "INFO", logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	    Compress:   true,
//	})
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a buffer to
// assert on log lines.
//
// # Configuration
//
//	logging:
//	  enabled: true
//	  level: info
//	  file: ""          # directory; empty means the mailbox directory
//	  max_size_mb: 10
//	  max_backups: 3
//	  compress: false
package logging
