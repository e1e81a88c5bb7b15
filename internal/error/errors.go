package custom_err

import "errors"

var (
	ErrorNotFullyWritten    = errors.New("data not fully written to socket")
	ErrorClientDisconnected = errors.New("client disconnected")
	ErrorReadingSocket      = errors.New("failed to copy data from kernel space to user space")
	ErrorUnknownAddress     = errors.New("unknown socket address type")

	ErrorServerClosed  = errors.New("server closed")
	ErrorServerRunning = errors.New("server already running")
)
