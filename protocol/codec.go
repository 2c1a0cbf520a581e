package protocol

import (
	"encoding/json"
	"fmt"
	"github.com/fansqz/remote-debugger/constants"
	e "github.com/fansqz/remote-debugger/error"
)

// Envelope agent消息在线路上的格式
type Envelope struct {
	Sequence  uint64             `json:"sequence"`
	Tag       constants.ReplyTag `json:"tag"`
	ErrorCode uint32             `json:"errorCode"`
	Body      json.RawMessage    `json:"body,omitempty"`
}

// DecodeReply 解析agent发送的一条消息
func DecodeReply(data []byte) (Reply, error) {
	envelope := &Envelope{}
	if err := json.Unmarshal(data, envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrMalformedReply, err)
	}
	factory, ok := replyFactories[envelope.Tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", e.ErrUnknownReplyTag, envelope.Tag)
	}
	reply := factory()
	if len(envelope.Body) > 0 && string(envelope.Body) != "null" {
		if err := json.Unmarshal(envelope.Body, reply); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", e.ErrMalformedReply, envelope.Tag, err)
		}
	}
	header := reply.Header()
	header.Sequence = envelope.Sequence
	header.ErrorCode = envelope.ErrorCode
	return reply, nil
}

// EncodeReply 编码一条消息，agent端和测试使用
func EncodeReply(reply Reply) ([]byte, error) {
	body, err := json.Marshal(reply)
	if err != nil {
		return nil, err
	}
	header := reply.Header()
	return json.Marshal(&Envelope{
		Sequence:  header.Sequence,
		Tag:       reply.Tag(),
		ErrorCode: header.ErrorCode,
		Body:      body,
	})
}

// RawCommand 参数没有解析的命令
type RawCommand struct {
	Sequence  uint64                `json:"sequence"`
	Type      constants.CommandType `json:"type"`
	Arguments json.RawMessage       `json:"arguments,omitempty"`
}

// ParseArguments 解析命令参数
func (c *RawCommand) ParseArguments(arguments interface{}) error {
	if len(c.Arguments) == 0 {
		return nil
	}
	return json.Unmarshal(c.Arguments, arguments)
}

func EncodeCommand(command *Command) ([]byte, error) {
	return json.Marshal(command)
}

// DecodeCommand 解析命令，agent端和测试使用
func DecodeCommand(data []byte) (*RawCommand, error) {
	command := &RawCommand{}
	if err := json.Unmarshal(data, command); err != nil {
		return nil, err
	}
	return command, nil
}
