package dynamodb

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"unimem/application/ports"
	"unimem/domain/core/entities"
	"unimem/domain/core/valueobjects"
	pkgerrors "unimem/pkg/errors"
)

// DefaultScanSegments is the parallel scan width used to load the vector table.
const DefaultScanSegments = 4

// VectorRepository implements ports.VectorRepository on the embeddings table.
//
// Vectors are stored as a DynamoDB number list. attributevalue formats each float32 with the
// shortest representation that parses back to the same float32, so the round trip is exact.
type VectorRepository struct {
	client    API
	tableName string
	segments  int
	logger    *zap.Logger
}

var _ ports.VectorRepository = (*VectorRepository)(nil)

// NewVectorRepository creates a new VectorRepository
func NewVectorRepository(client API, tableName string, segments int, logger *zap.Logger) *VectorRepository {
	if segments <= 0 {
		segments = DefaultScanSegments
	}
	return &VectorRepository{
		client:    client,
		tableName: tableName,
		segments:  segments,
		logger:    logger,
	}
}

type vectorItem struct {
	ID        string    `dynamodbav:"id"`
	OwnerID   string    `dynamodbav:"owner_id"`
	Vector    []float32 `dynamodbav:"vector"`
	Dimension int       `dynamodbav:"dimension"`
	Model     string    `dynamodbav:"model,omitempty"`
	CreatedAt string    `dynamodbav:"created_at"`
}

func encodeVectorRecord(rec entities.VectorRecord) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(vectorItem{
		ID:        rec.MemoryID.String(),
		OwnerID:   rec.OwnerID,
		Vector:    rec.Vector,
		Dimension: len(rec.Vector),
		Model:     rec.Model,
		CreatedAt: formatTime(rec.CreatedAt),
	})
}

func decodeVectorRecord(av map[string]types.AttributeValue) (entities.VectorRecord, error) {
	var item vectorItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return entities.VectorRecord{}, fmt.Errorf("failed to unmarshal vector: %w", err)
	}
	id, err := valueobjects.ParseMemoryID(item.ID)
	if err != nil {
		return entities.VectorRecord{}, err
	}
	if item.OwnerID == "" {
		return entities.VectorRecord{}, fmt.Errorf("vector %s has no owner", item.ID)
	}
	if len(item.Vector) == 0 {
		return entities.VectorRecord{}, fmt.Errorf("vector %s is empty", item.ID)
	}
	if item.Dimension != 0 && item.Dimension != len(item.Vector) {
		return entities.VectorRecord{}, fmt.Errorf("vector %s declares dimension %d but holds %d values", item.ID, item.Dimension, len(item.Vector))
	}
	createdAt, _ := parseTime(item.CreatedAt)
	return entities.VectorRecord{
		MemoryID:  id,
		OwnerID:   item.OwnerID,
		Vector:    item.Vector,
		Model:     item.Model,
		CreatedAt: createdAt,
	}, nil
}

// Save persists a vector record
func (r *VectorRepository) Save(ctx context.Context, rec entities.VectorRecord) error {
	av, err := encodeVectorRecord(rec)
	if err != nil {
		return pkgerrors.NewPersistenceError("save vector", fmt.Errorf("failed to marshal vector: %w", err))
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	if err != nil {
		return pkgerrors.NewPersistenceError("save vector", fmt.Errorf("failed to put vector: %w", err))
	}
	return nil
}

// GetByID retrieves the vector of one memory
func (r *VectorRepository) GetByID(ctx context.Context, id valueobjects.MemoryID) (*entities.VectorRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id.String()},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("get vector", fmt.Errorf("failed to get vector: %w", err))
	}
	if out.Item == nil {
		return nil, pkgerrors.NewNotFoundError("vector")
	}
	rec, err := decodeVectorRecord(out.Item)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("get vector", err)
	}
	return &rec, nil
}

// Delete removes the vector of one memory
func (r *VectorRepository) Delete(ctx context.Context, id valueobjects.MemoryID) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id.String()},
		},
	})
	if err != nil {
		return pkgerrors.NewPersistenceError("delete vector", fmt.Errorf("failed to delete vector: %w", err))
	}
	return nil
}

// ScanAll reads the whole table with a parallel segmented scan
func (r *VectorRepository) ScanAll(ctx context.Context) (*ports.VectorScanResult, error) {
	var (
		mu     sync.Mutex
		result = &ports.VectorScanResult{}
	)

	g, gctx := errgroup.WithContext(ctx)
	for segment := 0; segment < r.segments; segment++ {
		segment := segment
		g.Go(func() error {
			paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
				TableName:     aws.String(r.tableName),
				Segment:       aws.Int32(int32(segment)),
				TotalSegments: aws.Int32(int32(r.segments)),
			})
			for paginator.HasMorePages() {
				page, err := paginator.NextPage(gctx)
				if err != nil {
					return pkgerrors.NewPersistenceError("scan vectors", fmt.Errorf("segment %d: %w", segment, err))
				}

				records := make([]entities.VectorRecord, 0, len(page.Items))
				var failures []ports.VectorDecodeFailure
				for _, item := range page.Items {
					rec, err := decodeVectorRecord(item)
					if err != nil {
						id := ""
						if v, ok := item["id"].(*types.AttributeValueMemberS); ok {
							id = v.Value
						}
						failures = append(failures, ports.VectorDecodeFailure{ID: id, Reason: err.Error()})
						continue
					}
					records = append(records, rec)
				}

				mu.Lock()
				result.Records = append(result.Records, records...)
				result.Failures = append(result.Failures, failures...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Debug("Scanned vector table",
		zap.String("table", r.tableName),
		zap.Int("records", len(result.Records)),
		zap.Int("failures", len(result.Failures)),
	)
	return result, nil
}
