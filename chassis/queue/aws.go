package queue

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
)

// AWSQueue implementation
type AWSQueue struct {
	api               sqsiface.SQSAPI
	visibilityTimeout int64
}

// InitAWSQueue builds an SQS backend for the given (defaulted) config.
func InitAWSQueue(cfg Config) (*AWSQueue, error) {
	cfg = cfg.WithDefaults()
	awsCfg := &aws.Config{
		Region:     aws.String(cfg.Region),
		MaxRetries: aws.Int(cfg.Retries),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.CredentialsFile != "" || cfg.CredentialsProfile != "" {
		awsCfg.Credentials = credentials.NewSharedCredentials(cfg.CredentialsFile, cfg.CredentialsProfile)
	}
	ssn, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	return NewAWSQueue(sqs.New(ssn), cfg.VisibilityTimeout.Seconds()), nil
}

// NewAWSQueue wraps an existing SQS API client.
func NewAWSQueue(api sqsiface.SQSAPI, visibilityTimeoutSeconds float64) *AWSQueue {
	return &AWSQueue{
		api:               api,
		visibilityTimeout: int64(visibilityTimeoutSeconds),
	}
}

// ResolveQueue ...
func (q *AWSQueue) ResolveQueue(ctx context.Context, name string) (Handle, error) {
	out, err := q.api.GetQueueUrlWithContext(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		return "", &ResolutionError{Name: name, Err: err}
	}
	url := aws.StringValue(out.QueueUrl)
	if url == "" {
		return "", &ResolutionError{Name: name, Err: errors.New("empty queue url")}
	}
	log.WithFields(log.Fields{
		"event": "resolve_queue",
		"queue": "aws_sqs",
		"name":  name,
	}).Debug(url)
	return Handle(url), nil
}

// Send ...
func (q *AWSQueue) Send(ctx context.Context, handle Handle, message OutboundMessage) (string, error) {
	msg := &sqs.SendMessageInput{
		MessageBody: aws.String(message.Body),    // Required
		QueueUrl:    aws.String(string(handle)), // Required
	}
	if message.GroupID != "" {
		msg.MessageGroupId = aws.String(message.GroupID)
	}
	if message.DeduplicationID != "" {
		msg.MessageDeduplicationId = aws.String(message.DeduplicationID)
	}
	sendResponse, err := q.api.SendMessageWithContext(ctx, msg)
	if err != nil {
		return "", opError(ErrSend, handle, err)
	}
	id := aws.StringValue(sendResponse.MessageId)
	log.WithFields(log.Fields{
		"event": "send_message",
		"queue": "aws_sqs",
	}).Debug(id)
	return id, nil
}

// Receive long-polls for up to params.MaxMessages messages.
func (q *AWSQueue) Receive(ctx context.Context, handle Handle, params ReceiveParams) ([]InboundMessage, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(string(handle)),
		MaxNumberOfMessages:   aws.Int64(int64(params.MaxMessages)),
		WaitTimeSeconds:       aws.Int64(int64(params.WaitTime.Seconds())),
		AttributeNames:        aws.StringSlice(params.AttributeNames),
		MessageAttributeNames: aws.StringSlice(params.MessageAttributeNames),
	}
	if q.visibilityTimeout > 0 {
		input.VisibilityTimeout = aws.Int64(q.visibilityTimeout)
	}
	receiveResponse, err := q.api.ReceiveMessageWithContext(ctx, input)
	if err != nil {
		return nil, opError(ErrReceive, handle, err)
	}
	messages := make([]InboundMessage, 0, len(receiveResponse.Messages))
	for _, m := range receiveResponse.Messages {
		msg := InboundMessage{
			ID:            aws.StringValue(m.MessageId),
			Body:          aws.StringValue(m.Body),
			ReceiptHandle: aws.StringValue(m.ReceiptHandle),
			Attributes:    aws.StringValueMap(m.Attributes),
		}
		for name, attr := range m.MessageAttributes {
			if attr != nil && attr.StringValue != nil {
				msg.Attributes[name] = *attr.StringValue
			}
		}
		messages = append(messages, msg)
	}
	log.WithFields(log.Fields{
		"event": "receive_message",
		"queue": "aws_sqs",
		"count": len(messages),
	}).Debug(handle)
	return messages, nil
}

// Delete acknowledges a delivery by its receipt handle.
func (q *AWSQueue) Delete(ctx context.Context, handle Handle, receiptHandle string) error {
	_, err := q.api.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(string(handle)),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return opError(ErrDelete, handle, err)
	}
	log.WithFields(log.Fields{
		"event": "delete_message",
		"queue": "aws_sqs",
	}).Debug(receiptHandle)
	return nil
}
