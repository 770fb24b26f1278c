package kafkabridge

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/credkit/delivery"
)

// CodeEventType is the CloudEvents type of one-time code messages.
const CodeEventType = "credkit.two_factor.code_issued"

// CodePayload is the data of a code message. A notification service
// consuming the topic renders and sends it.
type CodePayload struct {
	UserID    string    `json:"user_id"`
	CodeID    string    `json:"code_id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CodeChannel hands one-time codes to a notification topic.
type CodeChannel struct {
	pub publisher
}

var _ delivery.Channel = (*CodeChannel)(nil)

func NewCodeChannel(w Writer, topic string, opts ...Option) *CodeChannel {
	return &CodeChannel{pub: newPublisher(w, topic, opts)}
}

// Send publishes msg keyed by user. A write failure is returned wrapped in
// delivery.ErrUnavailable.
func (c *CodeChannel) Send(ctx context.Context, msg delivery.Message) error {
	err := c.pub.publish(ctx, CodeEventType, msg.UserID, CodePayload{
		UserID:    msg.UserID,
		CodeID:    msg.CodeID,
		Code:      msg.Code,
		ExpiresAt: msg.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", delivery.ErrUnavailable, err)
	}
	return nil
}
