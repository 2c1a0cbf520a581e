package remote_debugger

import (
	"bufio"
	"context"
	"fmt"
	"github.com/fansqz/remote-debugger/constants"
	e "github.com/fansqz/remote-debugger/error"
	"github.com/google/go-dap"
	"github.com/gorilla/websocket"
	"net"
	"sync"
	"time"
)

// Connection 与agent之间按帧收发消息的连接
type Connection interface {
	// Receive 阻塞读取下一帧
	Receive() ([]byte, error)
	// Send 发送一帧，可以并发调用
	Send(data []byte) error
	Close() error
}

// DialOption 建立连接的参数
type DialOption struct {
	Transport    constants.TransportType
	Address      string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// Dial 根据传输方式连接agent
func Dial(ctx context.Context, option DialOption) (Connection, error) {
	switch option.Transport {
	case constants.TransportTCP:
		dialer := &net.Dialer{Timeout: option.DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", option.Address)
		if err != nil {
			return nil, err
		}
		return NewStreamConnection(conn, option.WriteTimeout), nil
	case constants.TransportWebsocket:
		dialer := &websocket.Dialer{HandshakeTimeout: option.DialTimeout}
		conn, _, err := dialer.DialContext(ctx, option.Address, nil)
		if err != nil {
			return nil, err
		}
		return NewWebsocketConnection(conn, option.WriteTimeout), nil
	default:
		return nil, fmt.Errorf("%w: %s", e.ErrTransportNotSupported, option.Transport)
	}
}

// StreamConnection 字节流上的连接，每一帧使用Content-Length头分隔
type StreamConnection struct {
	conn         net.Conn
	reader       *bufio.Reader
	writeLock    sync.Mutex
	writeTimeout time.Duration
}

func NewStreamConnection(conn net.Conn, writeTimeout time.Duration) *StreamConnection {
	return &StreamConnection{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writeTimeout: writeTimeout,
	}
}

func (c *StreamConnection) Receive() ([]byte, error) {
	return dap.ReadBaseMessage(c.reader)
}

func (c *StreamConnection) Send(data []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return dap.WriteBaseMessage(c.conn, data)
}

func (c *StreamConnection) Close() error {
	return c.conn.Close()
}

// WebsocketConnection 每条websocket文本消息是一帧
type WebsocketConnection struct {
	conn         *websocket.Conn
	writeLock    sync.Mutex
	writeTimeout time.Duration
}

func NewWebsocketConnection(conn *websocket.Conn, writeTimeout time.Duration) *WebsocketConnection {
	return &WebsocketConnection{conn: conn, writeTimeout: writeTimeout}
}

func (c *WebsocketConnection) Receive() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Send gorilla的连接同一时间只允许一个写入者
func (c *WebsocketConnection) Send(data []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WebsocketConnection) Close() error {
	c.writeLock.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeLock.Unlock()
	return c.conn.Close()
}
