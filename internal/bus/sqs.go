package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Receive defaults; the queue consumer scaffold relies on these.
const (
	DefaultReceiveBatch      = 10
	DefaultWaitTime          = 20 * time.Second
	DefaultVisibilityTimeout = 30 * time.Second
)

// sqsAPI is the slice of the SQS client the queue depends on.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSOptions tune receive behaviour. Zero values take the package defaults.
type SQSOptions struct {
	ReceiveBatch      int
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
}

func (o SQSOptions) normalize() SQSOptions {
	if o.ReceiveBatch <= 0 {
		o.ReceiveBatch = DefaultReceiveBatch
	}
	if o.WaitTime <= 0 {
		o.WaitTime = DefaultWaitTime
	}
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = DefaultVisibilityTimeout
	}
	return o
}

// SQSQueue adapts one SQS queue to the Publisher and Receiver contracts.
type SQSQueue struct {
	client   sqsAPI
	queueURL string
	opts     SQSOptions
}

// NewSQSQueue wraps client for the queue at queueURL.
func NewSQSQueue(client *sqs.Client, queueURL string, opts SQSOptions) *SQSQueue {
	return &SQSQueue{client: client, queueURL: queueURL, opts: opts.normalize()}
}

// Publish sends one payload to the queue.
func (q *SQSQueue) Publish(ctx context.Context, payload []byte) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Receive long-polls for up to the configured batch of messages.
func (q *SQSQueue) Receive(ctx context.Context) ([]Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.queueURL),
		MaxNumberOfMessages:   int32(q.opts.ReceiveBatch),
		WaitTimeSeconds:       int32(q.opts.WaitTime / time.Second),
		VisibilityTimeout:     int32(q.opts.VisibilityTimeout / time.Second),
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("receive messages: %w", err)
	}
	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, Message{
			ID:      aws.ToString(m.MessageId),
			Body:    []byte(aws.ToString(m.Body)),
			Receipt: aws.ToString(m.ReceiptHandle),
		})
	}
	return msgs, nil
}

// Delete acknowledges a processed message by receipt handle.
func (q *SQSQueue) Delete(ctx context.Context, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

var (
	_ Publisher = (*SQSQueue)(nil)
	_ Receiver  = (*SQSQueue)(nil)
)
