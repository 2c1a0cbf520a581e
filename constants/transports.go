package constants

// TransportType 与agent通信的方式
type TransportType string

const (
	TransportTCP       TransportType = "tcp"
	TransportWebsocket TransportType = "websocket"
)
