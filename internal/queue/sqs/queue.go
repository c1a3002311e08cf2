// Package sqs implements the work queue on AWS SQS.
package sqs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/pricewatch/meli-harvester/internal/harvest"
)

// api is the subset of the SQS client the queue uses. Narrowing the client
// keeps the queue testable without the network.
type api interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Queue implements harvest.WorkQueue against one SQS queue URL.
type Queue struct {
	client   api
	queueURL string
}

// New wraps an existing SQS client.
func New(client api, queueURL string) (*Queue, error) {
	if client == nil {
		return nil, fmt.Errorf("sqs client is required")
	}
	if queueURL == "" {
		return nil, fmt.Errorf("queue url is required")
	}
	return &Queue{client: client, queueURL: queueURL}, nil
}

// NewFromDefaultConfig builds a queue using the default AWS credential chain.
func NewFromDefaultConfig(ctx context.Context, region, queueURL string) (*Queue, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(sqs.NewFromConfig(cfg), queueURL)
}

// Claim receives up to opts.MaxMessages messages with the requested
// visibility timeout and long-poll wait.
func (q *Queue) Claim(ctx context.Context, opts harvest.ClaimOptions) ([]harvest.Message, error) {
	maxMessages := opts.MaxMessages
	if maxMessages <= 0 {
		maxMessages = 1
	}
	if maxMessages > 10 {
		// SQS caps a single receive at ten messages.
		maxMessages = 10
	}
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.queueURL),
		MaxNumberOfMessages:   int32(maxMessages),
		VisibilityTimeout:     int32(opts.VisibilityWindow / time.Second),
		WaitTimeSeconds:       int32(opts.WaitTime / time.Second),
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("receive messages: %w", err)
	}

	msgs := make([]harvest.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, harvest.Message{
			ID:         aws.ToString(m.MessageId),
			Body:       []byte(aws.ToString(m.Body)),
			Receipt:    aws.ToString(m.ReceiptHandle),
			Attributes: flattenAttributes(m.MessageAttributes),
		})
	}
	return msgs, nil
}

// Acknowledge deletes one in-flight message by receipt handle.
func (q *Queue) Acknowledge(ctx context.Context, receipt string) error {
	if receipt == "" {
		return fmt.Errorf("receipt is required")
	}
	if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// Send enqueues a message body with string attributes. For FIFO queues the
// groupID orders delivery per seller and the body digest deduplicates
// resends of the same item.
func (q *Queue) Send(ctx context.Context, body []byte, attributes map[string]string, groupID string) (string, error) {
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	}
	if len(attributes) > 0 {
		input.MessageAttributes = make(map[string]types.MessageAttributeValue, len(attributes))
		for name, value := range attributes {
			input.MessageAttributes[name] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(value),
			}
		}
	}
	if strings.HasSuffix(q.queueURL, ".fifo") && groupID != "" {
		input.MessageGroupId = aws.String(groupID)
		// Explicit deduplication ID so the send works on FIFO queues
		// without content-based dedup enabled. The body carries the key
		// pair and insertion timestamp, so its digest is stable per item.
		sum := sha256.Sum256(body)
		input.MessageDeduplicationId = aws.String(hex.EncodeToString(sum[:]))
	}

	out, err := q.client.SendMessage(ctx, input)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

func flattenAttributes(attrs map[string]types.MessageAttributeValue) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for name, value := range attrs {
		out[name] = aws.ToString(value.StringValue)
	}
	return out
}
