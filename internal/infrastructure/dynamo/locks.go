package dynamo

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// LockRepo is a lease-based lock table driven by conditional writes.
// PK: lock_key. expires_at holds unix millis.
type LockRepo struct {
	client    *dynamodb.Client
	tableName string
	now       func() time.Time
}

func NewLockRepo(client *dynamodb.Client, tableName string) *LockRepo {
	return &LockRepo{client: client, tableName: tableName, now: time.Now}
}

// TryAcquire writes the lease unless an unexpired one already exists.
func (r *LockRepo) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	now := r.now()
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			fieldLockKey:       &types.AttributeValueMemberS{Value: key},
			fieldLockOwner:     &types.AttributeValueMemberS{Value: owner},
			fieldLockExpiresAt: &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(ttl).UnixMilli(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(#k) OR #e < :now"),
		ExpressionAttributeNames: map[string]string{
			"#k": fieldLockKey,
			"#e": fieldLockExpiresAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Release deletes the lease if owner still holds it. A lease that expired and
// was taken over by someone else is left alone.
func (r *LockRepo) Release(ctx context.Context, key, owner string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldLockKey, key),
		ConditionExpression: aws.String("#o = :o"),
		ExpressionAttributeNames: map[string]string{
			"#o": fieldLockOwner,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: owner},
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return nil
	}
	return err
}
