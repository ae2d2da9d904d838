package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Limiter scopes share the control table; the scope keeps IP and owner counters apart.
const (
	ScopeIP    = "IP"
	ScopeOwner = "OWNER"
)

// RateLimitStore is the DynamoDB surface used by DistributedRateLimiter.
type RateLimitStore interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DistributedRateLimiter counts requests per fixed window in the control table so the
// limit holds across every Lambda instance. Counter rows expire an hour after their window.
type DistributedRateLimiter struct {
	store  RateLimitStore
	table  string
	scope  string
	limit  int
	window time.Duration
	now    func() time.Time
}

var _ RateLimiter = (*DistributedRateLimiter)(nil)

type windowCounter struct {
	Count int `dynamodbav:"Count"`
}

// NewDistributedRateLimiter allows limit requests per window for each key in scope.
// A nil store allows everything.
func NewDistributedRateLimiter(store RateLimitStore, table, scope string, limit int, window time.Duration) *DistributedRateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &DistributedRateLimiter{
		store:  store,
		table:  table,
		scope:  scope,
		limit:  max(limit, 1),
		window: window,
		now:    time.Now,
	}
}

func (r *DistributedRateLimiter) counterKey(key string, windowStart time.Time) map[string]types.AttributeValue {
	pk := fmt.Sprintf("RATELIMIT#%s#%s#%d", r.scope, key, windowStart.Unix())
	return map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: pk}}
}

// Allow increments the key's counter for the current window. The increment is conditional,
// so a full window is rejected by DynamoDB itself. Store failures fail open and are returned
// alongside true.
func (r *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r.store == nil {
		return true, nil
	}

	windowStart := r.now().Truncate(r.window)
	windowEnd := windowStart.Add(r.window)

	count := expression.Name("Count")
	update := expression.
		Set(count, expression.Plus(expression.IfNotExists(count, expression.Value(0)), expression.Value(1))).
		Set(expression.Name("WindowEnd"), expression.Value(windowEnd.Unix())).
		Set(expression.Name("TTL"), expression.Value(windowEnd.Add(time.Hour).Unix()))
	cond := expression.Or(
		expression.AttributeNotExists(count),
		count.LessThan(expression.Value(r.limit)),
	)
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return true, fmt.Errorf("build rate limit update: %w", err)
	}

	out, err := r.store.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       r.counterKey(key, windowStart),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var full *types.ConditionalCheckFailedException
		if errors.As(err, &full) {
			return false, nil
		}
		return true, fmt.Errorf("rate limiter unavailable (failing open): %w", err)
	}

	var counter windowCounter
	if err := attributevalue.UnmarshalMap(out.Attributes, &counter); err != nil {
		return true, fmt.Errorf("decode rate limit counter (failing open): %w", err)
	}
	return counter.Count <= r.limit, nil
}

// Reset clears the key's counter for the current window
func (r *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	if r.store == nil {
		return nil
	}
	_, err := r.store.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key:       r.counterKey(key, r.now().Truncate(r.window)),
	})
	return err
}
