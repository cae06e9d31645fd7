package wsbus

import (
	"time"

	"github.com/btouchard/elastic/internal/bus"
)

// Frame types exchanged over the websocket.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePublish     = "publish"
	FrameValue       = "value"
	FramePing        = "ping"
	FramePong        = "pong"
)

// Frame is one JSON text message. Clients send subscribe, unsubscribe,
// publish and ping; the server answers with value and pong.
type Frame struct {
	Type    string       `json:"type"`
	Topic   string       `json:"topic,omitempty"`
	Value   string       `json:"value,omitempty"`
	Options *bus.Options `json:"options,omitempty"`
	Seq     uint64       `json:"seq,omitempty"`
	Time    string       `json:"time,omitempty"`
}

func valueFrame(v bus.Value) Frame {
	return Frame{
		Type:  FrameValue,
		Topic: v.Topic,
		Value: v.Data,
		Seq:   v.Seq,
		Time:  v.Time.Format(time.RFC3339Nano),
	}
}
