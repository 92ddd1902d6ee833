package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-emailaddress/internal/domain"
)

// VerifiableDataRepo stores verification subjects.
// PK: verifiable_data_id
type VerifiableDataRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewVerifiableDataRepo(client *dynamodb.Client, tableName string) *VerifiableDataRepo {
	return &VerifiableDataRepo{client: client, tableName: tableName}
}

func (r *VerifiableDataRepo) Put(ctx context.Context, d *domain.VerifiableData) error {
	item, err := attributevalue.MarshalMap(d)
	if err != nil {
		return fmt.Errorf("marshal verifiable data: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *VerifiableDataRepo) Get(ctx context.Context, verifiableDataID string) (*domain.VerifiableData, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldVerifiableDataID, verifiableDataID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("verifiable data %s: %w", verifiableDataID, domain.ErrNotFound)
	}
	var d domain.VerifiableData
	if err := attributevalue.UnmarshalMap(out.Item, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// SetVerifiedUntil stores until, or removes the attribute when until is nil.
func (r *VerifiableDataRepo) SetVerifiedUntil(ctx context.Context, verifiableDataID string, until *time.Time) error {
	var (
		ue  *updateExpr
		err error
	)
	if until != nil {
		ue, err = buildUpdateExpr(map[string]interface{}{fieldVerifiedUntil: until.UTC()})
	} else {
		ue, err = buildUpdateExpr(nil, fieldVerifiedUntil)
	}
	if err != nil {
		return err
	}
	return r.update(ctx, verifiableDataID, ue)
}

// MarkInvalidated clears verified_until and stamps invalidated_at.
func (r *VerifiableDataRepo) MarkInvalidated(ctx context.Context, verifiableDataID string, at time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{fieldInvalidatedAt: at.UTC()}, fieldVerifiedUntil)
	if err != nil {
		return err
	}
	return r.update(ctx, verifiableDataID, ue)
}

func (r *VerifiableDataRepo) update(ctx context.Context, verifiableDataID string, ue *updateExpr) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldVerifiableDataID, verifiableDataID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}
