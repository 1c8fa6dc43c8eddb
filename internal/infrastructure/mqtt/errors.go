package mqtt

import "errors"

// Broker errors. Operations wrap these with the topic involved, so test
// with errors.Is.
var (
	ErrNotConnected     = errors.New("mqtt: not connected to broker")
	ErrConnectionFailed = errors.New("mqtt: cannot connect to broker")
	ErrTimeout          = errors.New("mqtt: broker did not acknowledge in time")

	ErrInvalidTopic    = errors.New("mqtt: empty topic")
	ErrInvalidQoS      = errors.New("mqtt: QoS must be 0, 1 or 2")
	ErrPayloadTooLarge = errors.New("mqtt: payload exceeds 1MB")

	ErrPublishFailed     = errors.New("mqtt: publish rejected")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe rejected")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe rejected")
)
