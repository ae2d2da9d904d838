package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"unimem/application/ports"
	"unimem/domain/core/entities"
	"unimem/domain/core/valueobjects"
	pkgerrors "unimem/pkg/errors"
)

// Secondary indexes on the memories table.
const (
	OwnerCreatedIndex = "owner_created_index"
	MemoryTypeIndex   = "memory_type_index"
	CreatedAtIndex    = "created_at_index"
)

// MemoryRepository implements ports.MemoryRepository on the memories table.
type MemoryRepository struct {
	client    API
	tableName string
	logger    *zap.Logger
}

var _ ports.MemoryRepository = (*MemoryRepository)(nil)

// NewMemoryRepository creates a new MemoryRepository
func NewMemoryRepository(client API, tableName string, logger *zap.Logger) *MemoryRepository {
	return &MemoryRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// memoryItem is the DynamoDB item layout of a memory unit
type memoryItem struct {
	ID         string                 `dynamodbav:"id"`
	OwnerID    string                 `dynamodbav:"owner_id"`
	Content    string                 `dynamodbav:"content"`
	MemoryType string                 `dynamodbav:"memory_type"`
	Metadata   map[string]interface{} `dynamodbav:"metadata"`
	Source     string                 `dynamodbav:"source,omitempty"`
	Summary    string                 `dynamodbav:"summary,omitempty"`
	Tags       []string               `dynamodbav:"tags,omitempty"`
	CreatedAt  string                 `dynamodbav:"created_at"`
	UpdatedAt  string                 `dynamodbav:"updated_at"`
}

func toMemoryItem(m *entities.MemoryUnit) memoryItem {
	return memoryItem{
		ID:         m.ID().String(),
		OwnerID:    m.OwnerID(),
		Content:    m.Content(),
		MemoryType: m.MemoryType().String(),
		Metadata:   m.Metadata(),
		Source:     m.Source(),
		Summary:    m.Summary(),
		Tags:       m.Tags(),
		CreatedAt:  formatTime(m.CreatedAt()),
		UpdatedAt:  formatTime(m.UpdatedAt()),
	}
}

func (item memoryItem) toEntity() (*entities.MemoryUnit, error) {
	id, err := valueobjects.ParseMemoryID(item.ID)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseTime(item.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTime(item.UpdatedAt)
	if err != nil {
		updatedAt = createdAt
	}
	return entities.ReconstructMemoryUnit(
		id,
		item.OwnerID,
		item.Content,
		valueobjects.MemoryType(item.MemoryType),
		item.Metadata,
		item.Source,
		item.Summary,
		item.Tags,
		createdAt,
		updatedAt,
	)
}

// Save persists a memory unit
func (r *MemoryRepository) Save(ctx context.Context, m *entities.MemoryUnit) error {
	av, err := attributevalue.MarshalMap(toMemoryItem(m))
	if err != nil {
		return pkgerrors.NewPersistenceError("save memory", fmt.Errorf("failed to marshal memory: %w", err))
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	if err != nil {
		return pkgerrors.NewPersistenceError("save memory", fmt.Errorf("failed to put memory: %w", err))
	}

	r.logger.Debug("Memory saved",
		zap.String("memoryID", m.ID().String()),
		zap.String("ownerID", m.OwnerID()),
	)
	return nil
}

// GetByID retrieves a memory by id
func (r *MemoryRepository) GetByID(ctx context.Context, id valueobjects.MemoryID) (*entities.MemoryUnit, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id.String()},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("get memory", fmt.Errorf("failed to get memory: %w", err))
	}
	if out.Item == nil {
		return nil, pkgerrors.NewNotFoundError("memory")
	}

	var item memoryItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, pkgerrors.NewPersistenceError("get memory", fmt.Errorf("failed to unmarshal memory: %w", err))
	}
	return item.toEntity()
}

// Delete removes a memory by id
func (r *MemoryRepository) Delete(ctx context.Context, id valueobjects.MemoryID) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id.String()},
		},
	})
	if err != nil {
		return pkgerrors.NewPersistenceError("delete memory", fmt.Errorf("failed to delete memory: %w", err))
	}
	return nil
}

// ListByOwner queries the owner index newest first. The full owner partition is read so the
// total is exact; offset and limit are applied after filtering.
func (r *MemoryRepository) ListByOwner(ctx context.Context, ownerID string, filter ports.ListFilter) (*ports.MemoryPage, error) {
	keyCond := expression.Key("owner_id").Equal(expression.Value(ownerID))
	switch {
	case filter.Start != nil && filter.End != nil:
		keyCond = keyCond.And(expression.Key("created_at").Between(
			expression.Value(formatTime(*filter.Start)), expression.Value(formatTime(*filter.End))))
	case filter.Start != nil:
		keyCond = keyCond.And(expression.Key("created_at").GreaterThanEqual(expression.Value(formatTime(*filter.Start))))
	case filter.End != nil:
		keyCond = keyCond.And(expression.Key("created_at").LessThanEqual(expression.Value(formatTime(*filter.End))))
	}

	builder := expression.NewBuilder().WithKeyCondition(keyCond)
	if filter.MemoryType != "" {
		builder = builder.WithFilter(expression.Name("memory_type").Equal(expression.Value(filter.MemoryType.String())))
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to build list expression").WithCause(err)
	}

	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(OwnerCreatedIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	})

	var memories []*entities.MemoryUnit
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.NewPersistenceError("list memories", fmt.Errorf("failed to query owner index: %w", err))
		}
		var items []memoryItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, pkgerrors.NewPersistenceError("list memories", fmt.Errorf("failed to unmarshal memories: %w", err))
		}
		for _, item := range items {
			m, err := item.toEntity()
			if err != nil {
				r.logger.Warn("Skipping malformed memory item",
					zap.String("memoryID", item.ID),
					zap.Error(err),
				)
				continue
			}
			memories = append(memories, m)
		}
	}

	// The index already returns newest first; re-sort so legacy timestamp formats order correctly.
	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].CreatedAt().After(memories[j].CreatedAt())
	})

	return paginate(memories, filter.Offset, filter.Limit), nil
}

func paginate(memories []*entities.MemoryUnit, offset, limit int) *ports.MemoryPage {
	page := &ports.MemoryPage{Total: len(memories), Memories: []*entities.MemoryUnit{}}
	if offset >= len(memories) {
		return page
	}
	end := len(memories)
	if limit > 0 && offset+limit < end {
		end = offset + limit
		page.HasMore = true
	}
	page.Memories = memories[offset:end]
	return page
}

// ScanIDs returns every memory id using a keys-only projection
func (r *MemoryRepository) ScanIDs(ctx context.Context) ([]string, error) {
	proj := expression.NamesList(expression.Name("id"))
	expr, err := expression.NewBuilder().WithProjection(proj).Build()
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to build projection").WithCause(err)
	}

	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		ProjectionExpression:     expr.Projection(),
		ExpressionAttributeNames: expr.Names(),
	})

	var ids []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.NewPersistenceError("scan memory ids", fmt.Errorf("failed to scan memories: %w", err))
		}
		for _, item := range page.Items {
			if v, ok := item["id"].(*types.AttributeValueMemberS); ok {
				ids = append(ids, v.Value)
			}
		}
	}
	return ids, nil
}

// Count returns the number of memories using a COUNT scan
func (r *MemoryRepository) Count(ctx context.Context) (int64, error) {
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
		Select:    types.SelectCount,
	})

	var total int64
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, pkgerrors.NewPersistenceError("count memories", fmt.Errorf("failed to count memories: %w", err))
		}
		total += int64(page.Count)
	}
	return total, nil
}

// HealthCheck verifies the memories table is active
func (r *MemoryRepository) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.tableName)})
	if err != nil {
		return pkgerrors.NewPersistenceError("describe table", err)
	}
	if out.Table == nil {
		return pkgerrors.NewUnavailableError(r.tableName)
	}
	if status := out.Table.TableStatus; status != types.TableStatusActive {
		return pkgerrors.NewUnavailableError(fmt.Sprintf("%s (status %s)", r.tableName, status))
	}
	return nil
}
