package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-emailaddress/internal/domain"
)

// EventPublisher publishes verification outcomes to an SNS topic.
type EventPublisher interface {
	PublishVerification(ctx context.Context, ev domain.VerificationEvent) error
}

type publishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type publisher struct {
	client   publishAPI
	topicARN string
}

// NewPublisher wraps an SNS client bound to topicARN.
func NewPublisher(client publishAPI, topicARN string) EventPublisher {
	return &publisher{client: client, topicARN: topicARN}
}

// NewClient creates an SNS client for the given AWS config.
func NewClient(awsCfg aws.Config, endpointURL string) *sns.Client {
	var clientOpts []func(*sns.Options)
	if endpointURL != "" {
		clientOpts = append(clientOpts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(endpointURL)
		})
	}
	return sns.NewFromConfig(awsCfg, clientOpts...)
}

func (p *publisher) PublishVerification(ctx context.Context, ev domain.VerificationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal verification event: %w", err)
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event":  {DataType: aws.String("String"), StringValue: aws.String(ev.Event)},
			"result": {DataType: aws.String("String"), StringValue: aws.String(string(ev.Result))},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
