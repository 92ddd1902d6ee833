package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-emailaddress/internal/domain"
)

const emailAddressCounter = "email_address"

// attachCondition admits the first subject only; a concurrent second attach fails.
const attachCondition = "attribute_exists(#id) AND attribute_not_exists(#vd)"

// EmailAddressRepo provides typed DynamoDB operations for the email_addresses table.
// PK: email_address_id (N). GSI: verifiable_data_id-index.
type EmailAddressRepo struct {
	client    *dynamodb.Client
	tableName string
	counters  *CounterRepo
}

func NewEmailAddressRepo(client *dynamodb.Client, tableName string, counters *CounterRepo) *EmailAddressRepo {
	return &EmailAddressRepo{client: client, tableName: tableName, counters: counters}
}

// Insert allocates the next id, stores the record and returns it with the id set.
func (r *EmailAddressRepo) Insert(ctx context.Context, e *domain.EmailAddress) (int64, error) {
	next, err := r.counters.Next(ctx, emailAddressCounter)
	if err != nil {
		return 0, err
	}
	e.EmailAddressID = next
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return 0, fmt.Errorf("marshal email address: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": fieldEmailAddressID,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("put email address %d: %w", next, err)
	}
	return next, nil
}

func (r *EmailAddressRepo) Get(ctx context.Context, emailAddressID int64) (*domain.EmailAddress, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            numKey(fieldEmailAddressID, emailAddressID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("email address %d: %w", emailAddressID, domain.ErrNoSuchRecord)
	}
	var e domain.EmailAddress
	if err := attributevalue.UnmarshalMap(out.Item, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListByVerifiableDataID returns every record linked to the given subject.
// At most two are fetched: callers only need to know whether there is exactly one.
func (r *EmailAddressRepo) ListByVerifiableDataID(ctx context.Context, verifiableDataID string) ([]domain.EmailAddress, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexVerifiableDataID),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": fieldVerifiableDataID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: verifiableDataID}},
		Limit:                     aws.Int32(2),
	})
	if err != nil {
		return nil, err
	}
	var list []domain.EmailAddress
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AttachVerifiableData links a subject to an existing record that has none yet.
// A record that already carries one yields domain.ErrVerifiableDataAttached.
func (r *EmailAddressRepo) AttachVerifiableData(ctx context.Context, emailAddressID int64, verifiableDataID string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldVerifiableDataID: verifiableDataID,
		fieldUpdatedAt:        time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	ue.Names["#id"] = fieldEmailAddressID
	ue.Names["#vd"] = fieldVerifiableDataID
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.tableName),
		Key:                                 numKey(fieldEmailAddressID, emailAddressID),
		UpdateExpression:                    aws.String(ue.Expr),
		ConditionExpression:                 aws.String(attachCondition),
		ExpressionAttributeNames:            ue.Names,
		ExpressionAttributeValues:           ue.Values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if len(ccf.Item) == 0 {
			return fmt.Errorf("email address %d: %w", emailAddressID, domain.ErrNoSuchRecord)
		}
		return fmt.Errorf("email address %d: %w", emailAddressID, domain.ErrVerifiableDataAttached)
	}
	return err
}

func (r *EmailAddressRepo) Delete(ctx context.Context, emailAddressID int64) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       numKey(fieldEmailAddressID, emailAddressID),
	})
	return err
}
