// Package dynamo keeps sensitive values in a DynamoDB table keyed by token.
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/leech/pkg/sensitive"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

type api interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

type sensitiveItem struct {
	Token string `dynamodbav:"token"`
	Value string `dynamodbav:"sensitive_value"`
}

type Vault struct {
	db    api
	table string
}

func NewVault(db *dynamodb.Client, table string) *Vault {
	return &Vault{db: db, table: table}
}

// PutIfAbsent writes the value unless the token already exists.
func (v *Vault) PutIfAbsent(ctx context.Context, token, value string) error {
	item, err := attributevalue.MarshalMap(sensitiveItem{Token: token, Value: value})
	if err != nil {
		return fmt.Errorf("marshal sensitive item: %w", err)
	}
	_, err = v.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(v.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#t)"),
		ExpressionAttributeNames: map[string]string{
			"#t": "token",
		},
	})
	if isConditionFailed(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store sensitive value: %w", err)
	}
	return nil
}

func (v *Vault) Get(ctx context.Context, token string) (string, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"token": token})
	if err != nil {
		return "", err
	}
	out, err := v.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(v.table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read sensitive value: %w", err)
	}
	if len(out.Item) == 0 {
		return "", fmt.Errorf("%w: %s", sensitive.ErrTokenNotFound, token)
	}
	var item sensitiveItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return "", fmt.Errorf("unmarshal sensitive item: %w", err)
	}
	return item.Value, nil
}

func isConditionFailed(err error) bool {
	if err == nil {
		return false
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}
