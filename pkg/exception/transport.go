package exception

import "github.com/yanun0323/errors"

// Transport errors
var (
	ErrTransportNotConnected = errors.New("transport: not connected")
	ErrTransportResponse     = errors.New("transport: there is an error in response error field")
	ErrTransportStatus       = errors.New("transport: unexpected status code")
	ErrTransportTimeout      = errors.New("transport: timed out waiting for response")
)
