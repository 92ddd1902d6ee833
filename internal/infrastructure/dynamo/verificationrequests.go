package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-emailaddress/internal/domain"
)

// VerificationRequestRepo stores the parameters of every issued token pair.
// PK: verification_request_id
type VerificationRequestRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewVerificationRequestRepo(client *dynamodb.Client, tableName string) *VerificationRequestRepo {
	return &VerificationRequestRepo{client: client, tableName: tableName}
}

func (r *VerificationRequestRepo) Put(ctx context.Context, req *domain.VerificationRequestRecord) error {
	item, err := attributevalue.MarshalMap(req)
	if err != nil {
		return fmt.Errorf("marshal verification request: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *VerificationRequestRepo) Get(ctx context.Context, requestID string) (*domain.VerificationRequestRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("verification_request_id", requestID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("verification request %s: %w", requestID, domain.ErrNotFound)
	}
	var req domain.VerificationRequestRecord
	if err := attributevalue.UnmarshalMap(out.Item, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
