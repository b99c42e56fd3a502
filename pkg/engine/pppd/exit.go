package pppd

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/robotalks/pppos/pkg/pppos"
)

var (
	// ErrClosed indicates the session was freed.
	ErrClosed = errors.New("pppd session closed")
	// ErrInputOverrun indicates pppd is not consuming its input.
	ErrInputOverrun = errors.New("pppd input queue full")
)

// exit status of pppd, see pppd(8) EXIT STATUS.
var exitCodes = map[int]pppos.ErrCode{
	0:  pppos.ErrConnect,     // connection terminated
	1:  pppos.ErrParam,       // fatal error
	2:  pppos.ErrParam,       // options error
	3:  pppos.ErrParam,       // not setuid-root
	4:  pppos.ErrDevice,      // no kernel PPP support
	5:  pppos.ErrUser,        // killed by a signal
	6:  pppos.ErrDevice,      // serial port lock failed
	7:  pppos.ErrDevice,      // serial port open failed
	8:  pppos.ErrConnect,     // connect script failed
	9:  pppos.ErrOpen,        // pty command failed
	10: pppos.ErrProtocol,    // negotiation failed
	11: pppos.ErrAuthFail,    // peer failed to authenticate
	12: pppos.ErrIdleTimeout, // idle
	13: pppos.ErrConnectTime, // connect time limit
	14: pppos.ErrOpen,        // callback negotiated
	15: pppos.ErrPeerDead,    // no LCP echo reply
	16: pppos.ErrConnect,     // modem hangup
	17: pppos.ErrLoopback,    // loopback detected
	18: pppos.ErrOpen,        // init script failed
	19: pppos.ErrAuthFail,    // failed to authenticate to peer
}

// ExitCodeToErr maps pppd exit status to ErrCode. Unknown status is
// reported as ErrConnect.
func ExitCodeToErr(code int) pppos.ErrCode {
	if c, ok := exitCodes[code]; ok {
		return c
	}
	return pppos.ErrConnect
}

// ExitError is the termination of a pppd process.
type ExitError struct {
	// Code is the exit status, -1 if killed by a signal.
	Code int
	Err  error
}

// Error implements error.
func (e *ExitError) Error() string {
	if e.Code < 0 {
		return fmt.Sprintf("pppd terminated: %v", e.Err)
	}
	return fmt.Sprintf("pppd exited with status %d (%s)", e.Code, e.ErrCode())
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// ErrCode maps the exit status to ErrCode.
func (e *ExitError) ErrCode() pppos.ErrCode {
	if e.Code < 0 {
		return pppos.ErrUser
	}
	return ExitCodeToErr(e.Code)
}

// exitErrorOf converts the result of exec.Cmd.Wait.
func exitErrorOf(err error) *ExitError {
	if err == nil {
		return &ExitError{Code: 0}
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return &ExitError{Code: ee.ExitCode(), Err: err}
	}
	return &ExitError{Code: -1, Err: err}
}
