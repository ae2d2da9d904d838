package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"unimem/infrastructure/persistence/schema"
)

// TableNames identifies the tables owned by the service.
type TableNames struct {
	Memories   string
	Embeddings string
	Control    string
}

// Bootstrapper creates missing tables and indexes through ordered schema migrations.
type Bootstrapper struct {
	client  API
	tables  TableNames
	waitFor time.Duration
	logger  *zap.Logger
}

// NewBootstrapper creates a Bootstrapper
func NewBootstrapper(client API, tables TableNames, logger *zap.Logger) *Bootstrapper {
	return &Bootstrapper{client: client, tables: tables, waitFor: 5 * time.Minute, logger: logger}
}

// Migrations returns the storage layout as an ordered list of idempotent steps.
func (b *Bootstrapper) Migrations() []schema.Migration {
	return []schema.Migration{
		{
			Version:     1,
			Description: "create memories table",
			Applied:     func(ctx context.Context) (bool, error) { return b.tableExists(ctx, b.tables.Memories) },
			Up:          func(ctx context.Context) error { return b.createTable(ctx, memoriesTableInput(b.tables.Memories)) },
		},
		{
			Version:     2,
			Description: "create embeddings table",
			Applied:     func(ctx context.Context) (bool, error) { return b.tableExists(ctx, b.tables.Embeddings) },
			Up:          func(ctx context.Context) error { return b.createTable(ctx, keyOnlyTableInput(b.tables.Embeddings, "id")) },
		},
		{
			// Tables created before owner scoping only carry the created_at and memory_type indexes.
			Version:     3,
			Description: "add owner index to memories table",
			Applied:     func(ctx context.Context) (bool, error) { return b.indexExists(ctx, b.tables.Memories, OwnerCreatedIndex) },
			Up:          b.addOwnerIndex,
		},
		{
			Version:     4,
			Description: "create control table with TTL",
			Applied:     func(ctx context.Context) (bool, error) { return b.tableExists(ctx, b.tables.Control) },
			Up: func(ctx context.Context) error {
				if err := b.createTable(ctx, keyOnlyTableInput(b.tables.Control, "PK")); err != nil {
					return err
				}
				_, err := b.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
					TableName: aws.String(b.tables.Control),
					TimeToLiveSpecification: &types.TimeToLiveSpecification{
						AttributeName: aws.String("TTL"),
						Enabled:       aws.Bool(true),
					},
				})
				if err != nil {
					return fmt.Errorf("failed to enable TTL on %s: %w", b.tables.Control, err)
				}
				return nil
			},
		},
	}
}

// EnsureTables applies every pending migration
func (b *Bootstrapper) EnsureTables(ctx context.Context) error {
	evolution := schema.NewSchemaEvolution(b.logger)
	for _, m := range b.Migrations() {
		if err := evolution.RegisterMigration(m); err != nil {
			return err
		}
	}
	return evolution.Migrate(ctx)
}

func (b *Bootstrapper) describe(ctx context.Context, table string) (*types.TableDescription, error) {
	out, err := b.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err != nil {
		if isResourceNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to describe table %s: %w", table, err)
	}
	return out.Table, nil
}

func (b *Bootstrapper) tableExists(ctx context.Context, table string) (bool, error) {
	desc, err := b.describe(ctx, table)
	return desc != nil, err
}

func (b *Bootstrapper) indexExists(ctx context.Context, table, index string) (bool, error) {
	desc, err := b.describe(ctx, table)
	if err != nil || desc == nil {
		return false, err
	}
	for _, gsi := range desc.GlobalSecondaryIndexes {
		if aws.ToString(gsi.IndexName) == index {
			return true, nil
		}
	}
	return false, nil
}

func (b *Bootstrapper) createTable(ctx context.Context, input *dynamodb.CreateTableInput) error {
	if _, err := b.client.CreateTable(ctx, input); err != nil {
		return fmt.Errorf("failed to create table %s: %w", aws.ToString(input.TableName), err)
	}
	b.logger.Info("Created table, waiting for it to become active", zap.String("table", aws.ToString(input.TableName)))

	waiter := dynamodb.NewTableExistsWaiter(b.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: input.TableName}, b.waitFor); err != nil {
		return fmt.Errorf("table %s did not become active: %w", aws.ToString(input.TableName), err)
	}
	return nil
}

func (b *Bootstrapper) addOwnerIndex(ctx context.Context) error {
	_, err := b.client.UpdateTable(ctx, &dynamodb.UpdateTableInput{
		TableName: aws.String(b.tables.Memories),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("owner_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("created_at"), AttributeType: types.ScalarAttributeTypeS},
		},
		GlobalSecondaryIndexUpdates: []types.GlobalSecondaryIndexUpdate{
			{Create: &types.CreateGlobalSecondaryIndexAction{
				IndexName:  aws.String(OwnerCreatedIndex),
				KeySchema:  rangeKeySchema("owner_id", "created_at"),
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", OwnerCreatedIndex, err)
	}
	return nil
}

func memoriesTableInput(table string) *dynamodb.CreateTableInput {
	all := &types.Projection{ProjectionType: types.ProjectionTypeAll}
	return &dynamodb.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("owner_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("created_at"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("memory_type"), AttributeType: types.ScalarAttributeTypeS},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{IndexName: aws.String(OwnerCreatedIndex), KeySchema: rangeKeySchema("owner_id", "created_at"), Projection: all},
			{IndexName: aws.String(MemoryTypeIndex), KeySchema: rangeKeySchema("memory_type", "created_at"), Projection: all},
			{IndexName: aws.String(CreatedAtIndex), KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("created_at"), KeyType: types.KeyTypeHash},
			}, Projection: all},
		},
	}
}

func keyOnlyTableInput(table, hashKey string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(hashKey), AttributeType: types.ScalarAttributeTypeS},
		},
	}
}

func rangeKeySchema(hash, rng string) []types.KeySchemaElement {
	return []types.KeySchemaElement{
		{AttributeName: aws.String(hash), KeyType: types.KeyTypeHash},
		{AttributeName: aws.String(rng), KeyType: types.KeyTypeRange},
	}
}
