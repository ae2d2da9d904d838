package dynamodb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"unimem/application/ports"
)

// DistributedLock provides distributed locking using DynamoDB conditional writes on the control table.
// Expired locks are taken over by the next caller and removed by the table TTL.
type DistributedLock struct {
	client    API
	tableName string
	owner     string
	logger    *zap.Logger
}

var _ ports.DistributedLock = (*DistributedLock)(nil)

// NewDistributedLock creates a lock client; every instance gets its own owner id.
func NewDistributedLock(client API, tableName string, logger *zap.Logger) *DistributedLock {
	return &DistributedLock{
		client:    client,
		tableName: tableName,
		owner:     uuid.New().String(),
		logger:    logger,
	}
}

func lockKey(key string) string {
	return "LOCK#" + key
}

// TryLock acquires key for ttl. It returns false when a live lock is held by anyone, including this owner.
func (dl *DistributedLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	_, err := dl.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(dl.tableName),
		Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: lockKey(key)},
			"Owner":      &types.AttributeValueMemberS{Value: dl.owner},
			"AcquiredAt": &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
			"ExpiresAt":  &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Unix(), 10)},
			"TTL":        &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Unix(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			dl.logger.Debug("Lock already held", zap.String("key", key))
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	dl.logger.Debug("Lock acquired",
		zap.String("key", key),
		zap.String("owner", dl.owner),
		zap.Duration("ttl", ttl),
	)
	return true, nil
}

// Unlock releases key if this instance still owns it
func (dl *DistributedLock) Unlock(ctx context.Context, key string) error {
	_, err := dl.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(dl.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: lockKey(key)},
		},
		ConditionExpression: aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "Owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: dl.owner},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			dl.logger.Warn("Lock already released or owned by someone else", zap.String("key", key))
			return nil
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
