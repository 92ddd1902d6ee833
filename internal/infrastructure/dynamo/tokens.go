package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-emailaddress/internal/domain"
)

// TokenRepo stores hashed accept/reject tokens.
// PK: token_hash. GSI: verifiable_data_id-index.
type TokenRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewTokenRepo(client *dynamodb.Client, tableName string) *TokenRepo {
	return &TokenRepo{client: client, tableName: tableName}
}

func (r *TokenRepo) Put(ctx context.Context, t *domain.VerificationToken) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *TokenRepo) Get(ctx context.Context, tokenHash string) (*domain.VerificationToken, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldTokenHash, tokenHash),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("token: %w", domain.ErrNotFound)
	}
	var t domain.VerificationToken
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListByVerifiableDataID pages through every token issued for a subject.
func (r *TokenRepo) ListByVerifiableDataID(ctx context.Context, verifiableDataID string) ([]domain.VerificationToken, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexVerifiableDataID),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": fieldVerifiableDataID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: verifiableDataID}},
	}
	var tokens []domain.VerificationToken
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		var page []domain.VerificationToken
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		tokens = append(tokens, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return tokens, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (r *TokenRepo) MarkUsed(ctx context.Context, tokenHash string, at time.Time) error {
	return r.stamp(ctx, tokenHash, fieldUsedAt, at)
}

func (r *TokenRepo) Revoke(ctx context.Context, tokenHash string, at time.Time) error {
	return r.stamp(ctx, tokenHash, fieldRevokedAt, at)
}

func (r *TokenRepo) stamp(ctx context.Context, tokenHash, field string, at time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{field: at.UTC()})
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldTokenHash, tokenHash),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}
