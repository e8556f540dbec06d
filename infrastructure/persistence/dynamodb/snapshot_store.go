package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"blueprint-drafts/application/ports"
	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/versioning"
	pkgerrors "blueprint-drafts/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// SnapshotAPI is the subset of the DynamoDB client the snapshot store uses
type SnapshotAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// SnapshotRecord is how a committed version is stored. The blueprint is kept
// as its JSON document so the stored bytes match the version checksum.
type SnapshotRecord struct {
	PK          string              `dynamodbav:"PK"` // BLUEPRINT#<blueprint_id>
	SK          string              `dynamodbav:"SK"` // VERSION#<zero padded version>
	BlueprintID string              `dynamodbav:"BlueprintID"`
	Version     int                 `dynamodbav:"Version"`
	Checksum    string              `dynamodbav:"Checksum"`
	NodeCount   int                 `dynamodbav:"NodeCount"`
	EdgeCount   int                 `dynamodbav:"EdgeCount"`
	CreatedAt   string              `dynamodbav:"CreatedAt"` // RFC3339Nano
	CreatedBy   string              `dynamodbav:"CreatedBy"`
	ProposalID  string              `dynamodbav:"ProposalID,omitempty"`
	Changes     []versioning.Change `dynamodbav:"Changes,omitempty"`
	Blueprint   string              `dynamodbav:"Blueprint,omitempty"`
}

// SnapshotStore implements ports.SnapshotStore on a single DynamoDB table.
// Saves are conditional on the version not existing, so two writers racing
// for the same version cannot both succeed.
type SnapshotStore struct {
	client    SnapshotAPI
	tableName string
	logger    *zap.Logger
}

// NewSnapshotStore creates a new DynamoDB snapshot store
func NewSnapshotStore(client SnapshotAPI, tableName string, logger *zap.Logger) *SnapshotStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func partitionKey(blueprintID string) string {
	return "BLUEPRINT#" + blueprintID
}

func sortKey(version int) string {
	return fmt.Sprintf("VERSION#%010d", version)
}

func itemKey(blueprintID string, version int) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: partitionKey(blueprintID)},
		"SK": &types.AttributeValueMemberS{Value: sortKey(version)},
	}
}

// LoadLatest returns the newest committed version
func (s *SnapshotStore) LoadLatest(ctx context.Context, blueprintID string) (*ports.Snapshot, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(partitionKey(blueprintID))).
		And(expression.Key("SK").BeginsWith("VERSION#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false), // newest first
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("load latest snapshot", err)
	}
	if len(result.Items) == 0 {
		return nil, pkgerrors.NewNotFoundError("blueprint snapshot")
	}
	return s.decode(result.Items[0])
}

// Load returns one committed version
func (s *SnapshotStore) Load(ctx context.Context, blueprintID string, version int) (*ports.Snapshot, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(blueprintID, version),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("load snapshot", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("blueprint version")
	}
	return s.decode(result.Item)
}

// Save persists a new version; an existing version is never overwritten
func (s *SnapshotStore) Save(ctx context.Context, snapshot *ports.Snapshot) error {
	if snapshot == nil || snapshot.Version == nil || snapshot.Blueprint == nil {
		return pkgerrors.NewValidationError("snapshot requires a version and a blueprint")
	}

	record, err := toRecord(snapshot)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot record: %w", err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeNotExists()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return pkgerrors.VersionExists(record.BlueprintID, record.Version)
		}
		return pkgerrors.NewDatabaseError("save snapshot", err)
	}

	s.logger.Debug("Snapshot saved",
		zap.String("blueprintID", record.BlueprintID),
		zap.Int("version", record.Version),
		zap.String("checksum", record.Checksum),
	)
	return nil
}

// Delete removes one version
func (s *SnapshotStore) Delete(ctx context.Context, blueprintID string, version int) error {
	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeExists()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       itemKey(blueprintID, version),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return pkgerrors.NewNotFoundError("blueprint version")
		}
		return pkgerrors.NewDatabaseError("delete snapshot", err)
	}
	return nil
}

// ListVersions returns version records in ascending order. The blueprint
// bodies are not read.
func (s *SnapshotStore) ListVersions(ctx context.Context, blueprintID string) ([]*versioning.BlueprintVersion, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(partitionKey(blueprintID))).
		And(expression.Key("SK").BeginsWith("VERSION#"))
	projection := expression.NamesList(
		expression.Name("PK"), expression.Name("SK"), expression.Name("BlueprintID"),
		expression.Name("Version"), expression.Name("Checksum"), expression.Name("NodeCount"),
		expression.Name("EdgeCount"), expression.Name("CreatedAt"), expression.Name("CreatedBy"),
		expression.Name("ProposalID"), expression.Name("Changes"),
	)
	expr, err := expression.NewBuilder().
		WithKeyCondition(keyCond).
		WithProjection(projection).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
	})

	var versions []*versioning.BlueprintVersion
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("list versions", err)
		}
		for _, item := range page.Items {
			var record SnapshotRecord
			if err := attributevalue.UnmarshalMap(item, &record); err != nil {
				return nil, fmt.Errorf("failed to unmarshal snapshot record: %w", err)
			}
			v, err := record.version()
			if err != nil {
				return nil, err
			}
			versions = append(versions, v)
		}
	}
	return versions, nil
}

func (s *SnapshotStore) decode(item map[string]types.AttributeValue) (*ports.Snapshot, error) {
	var record SnapshotRecord
	if err := attributevalue.UnmarshalMap(item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot record: %w", err)
	}
	v, err := record.version()
	if err != nil {
		return nil, err
	}

	var doc aggregates.Document
	if err := json.Unmarshal([]byte(record.Blueprint), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode blueprint %s@%d: %w", record.BlueprintID, record.Version, err)
	}
	bp, err := aggregates.FromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("stored blueprint %s@%d is invalid: %w", record.BlueprintID, record.Version, err)
	}
	if v.Checksum == "" {
		return &ports.Snapshot{Version: v, Blueprint: bp}, nil
	}
	if err := v.Verify(bp); err != nil {
		s.logger.Warn("Snapshot checksum mismatch",
			zap.String("blueprintID", record.BlueprintID),
			zap.Int("version", record.Version),
			zap.Error(err),
		)
		return nil, err
	}
	return &ports.Snapshot{Version: v, Blueprint: bp}, nil
}

func toRecord(snapshot *ports.Snapshot) (*SnapshotRecord, error) {
	v := snapshot.Version
	body, err := json.Marshal(snapshot.Blueprint.ToDocument())
	if err != nil {
		return nil, fmt.Errorf("failed to encode blueprint: %w", err)
	}
	return &SnapshotRecord{
		PK:          partitionKey(v.BlueprintID),
		SK:          sortKey(v.Version),
		BlueprintID: v.BlueprintID,
		Version:     v.Version,
		Checksum:    v.Checksum,
		NodeCount:   v.NodeCount,
		EdgeCount:   v.EdgeCount,
		CreatedAt:   v.CreatedAt.UTC().Format(time.RFC3339Nano),
		CreatedBy:   v.CreatedBy,
		ProposalID:  v.ProposalID,
		Changes:     v.Changes,
		Blueprint:   string(body),
	}, nil
}

func (r SnapshotRecord) version() (*versioning.BlueprintVersion, error) {
	v := &versioning.BlueprintVersion{
		BlueprintID: r.BlueprintID,
		Version:     r.Version,
		Checksum:    r.Checksum,
		NodeCount:   r.NodeCount,
		EdgeCount:   r.EdgeCount,
		CreatedBy:   r.CreatedBy,
		ProposalID:  r.ProposalID,
		Changes:     r.Changes,
	}
	if v.BlueprintID == "" {
		v.BlueprintID = strings.TrimPrefix(r.PK, "BLUEPRINT#")
	}
	if v.Version == 0 {
		n, err := strconv.Atoi(strings.TrimPrefix(r.SK, "VERSION#"))
		if err != nil {
			return nil, fmt.Errorf("malformed sort key %q", r.SK)
		}
		v.Version = n
	}
	if r.CreatedAt != "" {
		createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("malformed CreatedAt %q: %w", r.CreatedAt, err)
		}
		v.CreatedAt = createdAt
	}
	return v, nil
}
