package stream

import (
	"encoding/json"

	"github.com/quantarc/quantarc/pkg/errors"
)

// Codec translates between subscription keys and a venue's wire frames. Each
// venue supplies its own implementation; the manager stays protocol-agnostic.
type Codec interface {
	// SubscribeFrame encodes a frame subscribing to the given keys.
	SubscribeFrame(keys []Key) ([]byte, error)
	// UnsubscribeFrame encodes a frame unsubscribing from the given keys.
	UnsubscribeFrame(keys []Key) ([]byte, error)
	// Decode routes an inbound frame to its subscription key and extracts the
	// payload. Frames the codec does not recognize must fail with
	// ErrCodeProtocolMismatch.
	Decode(frame []byte) (Key, []byte, error)
}

type jsonControlFrame struct {
	Op   string    `json:"op"`
	Args []jsonArg `json:"args"`
}

type jsonArg struct {
	Symbol  string `json:"symbol"`
	Channel string `json:"channel"`
}

type jsonDataFrame struct {
	Symbol  string          `json:"symbol"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// JSONCodec speaks a plain JSON protocol: control frames
// {"op":"subscribe","args":[{"symbol":...,"channel":...}]} and data frames
// {"symbol":...,"channel":...,"data":...}.
type JSONCodec struct{}

var _ Codec = (*JSONCodec)(nil)

func (c *JSONCodec) SubscribeFrame(keys []Key) ([]byte, error) {
	return c.controlFrame("subscribe", keys)
}

func (c *JSONCodec) UnsubscribeFrame(keys []Key) ([]byte, error) {
	return c.controlFrame("unsubscribe", keys)
}

func (c *JSONCodec) controlFrame(op string, keys []Key) ([]byte, error) {
	frame := jsonControlFrame{Op: op, Args: make([]jsonArg, 0, len(keys))}
	for _, key := range keys {
		frame.Args = append(frame.Args, jsonArg{Symbol: key.Symbol, Channel: string(key.Channel)})
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeProtocolMismatch, err, "failed to encode %s frame", op)
	}

	return data, nil
}

func (c *JSONCodec) Decode(frame []byte) (Key, []byte, error) {
	var data jsonDataFrame
	if err := json.Unmarshal(frame, &data); err != nil {
		return Key{}, nil, errors.Wrap(errors.ErrCodeProtocolMismatch, "unparseable frame", err)
	}

	if data.Symbol == "" || data.Channel == "" {
		return Key{}, nil, errors.New(errors.ErrCodeProtocolMismatch, "frame missing symbol or channel")
	}

	return Key{Symbol: data.Symbol, Channel: Channel(data.Channel)}, data.Data, nil
}
