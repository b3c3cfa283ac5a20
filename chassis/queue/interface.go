package queue

import (
	"context"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxMessagesCap is the hard SQS limit for messages returned by one receive call.
	MaxMessagesCap = 10
	// WaitTimeCap is the longest long-poll SQS accepts.
	WaitTimeCap = 20 * time.Second

	DefaultRegion      = "us-east-1"
	DefaultName        = "default"
	DefaultMaxMessages = MaxMessagesCap
	DefaultWaitTime    = WaitTimeCap

	fifoSuffix = ".fifo"

	// AttrReceiveCount is the system attribute requested on every receive.
	AttrReceiveCount = "ApproximateReceiveCount"
	// AttrGroupID carries the FIFO message group of a delivery.
	AttrGroupID = "MessageGroupId"
	// AttrAll requests every message attribute.
	AttrAll = "All"
)

// Config - unified configuration for queue service
type Config struct {
	Name     string
	Endpoint string
	Fifo     bool

	MaxMessages       int
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
	// GroupID is the FIFO message group. Empty means group by pattern.
	GroupID string

	//AWS specified
	Region             string
	CredentialsFile    string
	CredentialsProfile string
	Retries            int
}

// WithDefaults returns a copy with defaults applied to every unset field.
// MaxMessages and WaitTime are clamped down to the backend caps.
func (c Config) WithDefaults() Config {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Fifo && !strings.HasSuffix(c.Name, fifoSuffix) {
		c.Name += fifoSuffix
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = DefaultMaxMessages
	}
	if c.MaxMessages > MaxMessagesCap {
		c.MaxMessages = MaxMessagesCap
	}
	if c.WaitTime <= 0 {
		c.WaitTime = DefaultWaitTime
	}
	if c.WaitTime > WaitTimeCap {
		c.WaitTime = WaitTimeCap
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	return c
}

// Handle is a resolved queue address (an SQS queue URL).
type Handle string

// InboundMessage unified presentation for a received queue message
type InboundMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
	Attributes    map[string]string
}

// ReceiveCount returns how many times the message has been received, 0 when unknown.
func (m *InboundMessage) ReceiveCount() int {
	n, err := strconv.Atoi(m.Attributes[AttrReceiveCount])
	if err != nil {
		return 0
	}
	return n
}

// OutboundMessage is a message body plus FIFO routing fields.
type OutboundMessage struct {
	Body            string
	GroupID         string
	DeduplicationID string
}

// ReceiveParams is the fixed receive request built once at consumer start.
type ReceiveParams struct {
	MaxMessages           int
	WaitTime              time.Duration
	AttributeNames        []string
	MessageAttributeNames []string
}

// Backend interface for queue interaction (SQS Based)
type Backend interface {
	ResolveQueue(ctx context.Context, name string) (Handle, error)
	Send(ctx context.Context, handle Handle, message OutboundMessage) (string, error)
	Receive(ctx context.Context, handle Handle, params ReceiveParams) ([]InboundMessage, error)
	Delete(ctx context.Context, handle Handle, receiptHandle string) error
}
