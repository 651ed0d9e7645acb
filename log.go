package pstreams

import (
	"fmt"
	"io"
	"os"

	"github.com/agilira/lethe"
)

// LTCode is a log/trace priority code. The twelve tiers mirror the
// original four categories (debug, info, warning, error) each split into
// three sub-levels; the mid value of each category names the category.
type LTCode int

const (
	LTMin LTCode = iota
	LT1
	LTDebug // LT2
	LT3
	LT4
	LTInfo // LT5
	LT6
	LT7
	LTWarning // LT8
	LT9
	LT10
	LTError // LT11
	LT12
	LTMax
)

// LTOff disables all log output; LTAll passes every call through.
const (
	LTOff = LTMax
	LTAll = LTMin
)

// logSink owns the per-stream log/trace output. It wraps an io.Writer
// (by default os.Stderr, or a lethe.Logger once SetLogFile succeeds).
// Filtering is per queue, not per sink: a call is written only if its
// LTCode is >= the target queue's LTFilter (see ltfilter).
type logSink struct {
	w       io.Writer
	closer  io.Closer
	flushed bool
}

func newLogSink() *logSink {
	return &logSink{w: os.Stderr}
}

// setFile redirects the sink to a rotating log file managed by lethe.
// Any previously open file is closed first. On failure the sink falls
// back to os.Stderr and returns the error; it is not recorded as the
// stream's last error.
func (s *logSink) setFile(path string) error {
	if s.closer != nil {
		_ = s.closer.Close()
		s.closer = nil
	}
	logger, err := lethe.NewWithDefaults(path)
	if err != nil {
		s.w = os.Stderr
		return err
	}
	s.w = logger
	s.closer = logger
	return nil
}

func (s *logSink) close() error {
	if s.closer != nil {
		err := s.closer.Close()
		s.closer = nil
		return err
	}
	return nil
}

// write formats and appends one log line in the form:
//
//	"<priority> <moduleName> qcount=<bytes>/<msgs> <formatted message>"
func (s *logSink) write(ltcode LTCode, moduleName string, byteCount, msgCount int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%d %s qcount=%d/%d %s\n", ltcode, moduleName, byteCount, msgCount, msg)
	_, _ = s.w.Write([]byte(line))
}

// ltfilter reports whether a message logged at ltcode on q should be
// emitted given q's filter level. Higher codes are more restrictive: a
// call passes only when ltcode is at or above the queue's ltfilter.
func ltfilter(q *Queue, ltcode LTCode) bool {
	return ltcode >= q.LTFilter
}

// log is the stream-wide logging entry point used throughout the
// package; it is the equivalent of the original pstreams_log().
func (s *Stream) log(q *Queue, ltcode LTCode, format string, args ...any) {
	if !ltfilter(q, ltcode) {
		return
	}
	name := "?"
	if q.Info != nil {
		name = q.Info.IDName
	}
	s.logSink.write(ltcode, name, q.ByteCount, q.Len(), format, args...)
}

// Log is the exported counterpart of log, for modules and device
// implementations outside this package (devices.UDP/TCP, modules/saw)
// to write through the same per-queue log/trace sink that Open, Close,
// Putmsg, and Getmsg use internally.
func (s *Stream) Log(q *Queue, ltcode LTCode, format string, args ...any) {
	s.log(q, ltcode, format, args...)
}
