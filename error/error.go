package error

import "errors"

var (
	ErrDebuggerIsClosed        = errors.New("debug is closed")
	ErrNotConnected            = errors.New("debugger is not connected")
	ErrAlreadyConnected        = errors.New("debugger is already connected")
	ErrTransportNotSupported   = errors.New("This transport is not supported")
	ErrUnknownReplyTag         = errors.New("unknown reply tag")
	ErrMalformedReply          = errors.New("malformed reply")
	ErrThreadNotFound          = errors.New("thread not found")
	ErrModuleNotFound          = errors.New("module not found")
	ErrModuleAlreadyLoaded     = errors.New("module already loaded")
	ErrInvalidAddress          = errors.New("invalid breakpoint address")
	ErrInvalidCondition        = errors.New("invalid breakpoint condition")
	ErrBreakpointNotFound      = errors.New("breakpoint not found")
	ErrInvalidBreakpointStatus = errors.New("invalid breakpoint status")
)
