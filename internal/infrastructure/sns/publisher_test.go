package sns

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-emailaddress/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublishAPI struct{ mock.Mock }

func (m *mockPublishAPI) Publish(ctx context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if out, _ := args.Get(0).(*sns.PublishOutput); out != nil {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestPublishVerification_SendsJSONToTopic(t *testing.T) {
	api := &mockPublishAPI{}
	var sent *sns.PublishInput
	api.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*sns.PublishInput) }).
		Return(&sns.PublishOutput{}, nil)

	id := int64(7)
	err := NewPublisher(api, "arn:aws:sns:us-east-1:000000000000:verifications").PublishVerification(context.Background(), domain.VerificationEvent{
		Event:          "email_address.verification",
		EmailAddressID: &id,
		Result:         domain.ConfirmationSuccess,
	})

	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:verifications", *sent.TopicArn)
	var got domain.VerificationEvent
	require.NoError(t, json.Unmarshal([]byte(*sent.Message), &got))
	assert.Equal(t, int64(7), *got.EmailAddressID)
	assert.Equal(t, "SUCCESS", *sent.MessageAttributes["result"].StringValue)
}

func TestPublishVerification_WrapsError(t *testing.T) {
	api := &mockPublishAPI{}
	api.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	err := NewPublisher(api, "arn").PublishVerification(context.Background(), domain.VerificationEvent{Result: domain.ConfirmationFailed})

	assert.ErrorContains(t, err, "sns publish: throttled")
}
