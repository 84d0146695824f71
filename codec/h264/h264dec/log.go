/*
DESCRIPTION
  log.go adapts the package's internal printf-style tracing, used
  throughout cabac.go, slice.go, pps.go, sps.go and read.go, onto
  the module's shared structured logger so h264dec does not need its own
  logging setup.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package h264dec

import (
	"fmt"

	"github.com/ausocean/mediacore/internal/mlog"
)

// traceLogger adapts mlog.Logger to the Printf/Println call sites
// scattered through this package's bitstream parsing code.
type traceLogger struct{ l *mlog.Logger }

func (t traceLogger) Printf(format string, args ...interface{}) {
	t.l.Debugw(fmt.Sprintf(format, args...))
}

func (t traceLogger) Println(args ...interface{}) {
	t.l.Debugw(fmt.Sprint(args...))
}

// logger is package-level so the many low-level parsing functions below
// don't each need a logger threaded through their signature. It discards
// everything until SetLogger is called.
var logger = traceLogger{l: mlog.Nop()}

// SetLogger directs this package's bitstream tracing through l. Passing
// nil reverts to discarding.
func SetLogger(l *mlog.Logger) {
	if l == nil {
		l = mlog.Nop()
	}
	logger = traceLogger{l: l}
}
