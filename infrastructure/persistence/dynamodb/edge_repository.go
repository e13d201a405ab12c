package dynamodb

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"flopods-backend/application/ports"
	"flopods-backend/domain/core/entities"
	pkgerrors "flopods-backend/pkg/errors"
)

// batchWriteChunk is DynamoDB's BatchWriteItem limit
const batchWriteChunk = 25

// EdgeRepository implements ports.EdgeRepository on the single table
type EdgeRepository struct {
	client    *awsdynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewEdgeRepository creates an edge repository
func NewEdgeRepository(client *awsdynamodb.Client, tableName string, logger *zap.Logger) *EdgeRepository {
	return &EdgeRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// edgeItem is the stored form of an edge
type edgeItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	EntityType   string `dynamodbav:"EntityType"`
	EdgeID       string `dynamodbav:"EdgeID"`
	FlowID       string `dynamodbav:"FlowID"`
	SourceID     string `dynamodbav:"SourceID"`
	TargetID     string `dynamodbav:"TargetID"`
	SourceHandle string `dynamodbav:"SourceHandle,omitempty"`
	TargetHandle string `dynamodbav:"TargetHandle,omitempty"`
	Animated     bool   `dynamodbav:"Animated"`
	Version      int    `dynamodbav:"Version"`
	CreatedBy    string `dynamodbav:"CreatedBy"`
	CreatedAt    string `dynamodbav:"CreatedAt"`
}

func toEdgeItem(edge *entities.Edge) *edgeItem {
	return &edgeItem{
		PK:           flowPK(edge.FlowID),
		SK:           edgeSK(edge.ID),
		EntityType:   "EDGE",
		EdgeID:       edge.ID,
		FlowID:       edge.FlowID,
		SourceID:     edge.SourceID,
		TargetID:     edge.TargetID,
		SourceHandle: edge.SourceHandle,
		TargetHandle: edge.TargetHandle,
		Animated:     edge.Animated,
		Version:      edge.Version,
		CreatedBy:    edge.CreatedBy,
		CreatedAt:    edge.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (item *edgeItem) toEntity() (*entities.Edge, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse edge timestamp", err)
	}
	return &entities.Edge{
		ID:           item.EdgeID,
		FlowID:       item.FlowID,
		SourceID:     item.SourceID,
		TargetID:     item.TargetID,
		SourceHandle: item.SourceHandle,
		TargetHandle: item.TargetHandle,
		Animated:     item.Animated,
		Version:      item.Version,
		CreatedBy:    item.CreatedBy,
		CreatedAt:    createdAt,
	}, nil
}

// Get fetches an edge by flow and id
func (r *EdgeRepository) Get(ctx context.Context, flowID, edgeID string) (*entities.Edge, error) {
	result, err := r.client.GetItem(ctx, &awsdynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: flowPK(flowID)},
			"SK": &types.AttributeValueMemberS{Value: edgeSK(edgeID)},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get edge", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("edge")
	}

	var item edgeItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal edge", err)
	}
	return item.toEntity()
}

// Put writes an edge conditionally on expectedVersion
func (r *EdgeRepository) Put(ctx context.Context, edge *entities.Edge, expectedVersion int) (*entities.Edge, error) {
	written := edge.Clone()
	written.Version = expectedVersion + 1
	if expectedVersion == 0 {
		written.Version = 1
	}

	item := toEdgeItem(written)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("marshal edge", err)
	}

	input := &awsdynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}
	if expectedVersion == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)")
	} else {
		input.ConditionExpression = aws.String("attribute_exists(PK) AND Version = :v")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.Itoa(expectedVersion)},
		}
	}

	if _, err := r.client.PutItem(ctx, input); err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			if expectedVersion == 0 {
				return nil, pkgerrors.NewVersionConflictError("edge", 0)
			}
			if _, getErr := r.Get(ctx, edge.FlowID, edge.ID); pkgerrors.IsNotFound(getErr) {
				return nil, pkgerrors.NewNotFoundError("edge")
			}
			return nil, pkgerrors.NewVersionConflictError("edge", expectedVersion)
		}
		return nil, pkgerrors.NewDatabaseError("put edge", err)
	}
	return written, nil
}

// Delete removes an edge
func (r *EdgeRepository) Delete(ctx context.Context, flowID, edgeID string) error {
	_, err := r.client.DeleteItem(ctx, &awsdynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: flowPK(flowID)},
			"SK": &types.AttributeValueMemberS{Value: edgeSK(edgeID)},
		},
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return pkgerrors.NewNotFoundError("edge")
		}
		return pkgerrors.NewDatabaseError("delete edge", err)
	}
	return nil
}

// ListByFlow pages through a flow's edges in SK order
func (r *EdgeRepository) ListByFlow(ctx context.Context, flowID string, page ports.Page) (*ports.EdgePage, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(flowPK(flowID))).
		And(expression.Key("SK").BeginsWith(edgePrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("build edge list query", err)
	}

	input := &awsdynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if page.Limit > 0 {
		input.Limit = aws.Int32(int32(page.Limit))
	}
	if input.ExclusiveStartKey, err = decodeCursor(page.Cursor); err != nil {
		return nil, err
	}

	result, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("list edges", err)
	}

	out := &ports.EdgePage{Edges: make([]*entities.Edge, 0, len(result.Items))}
	for _, raw := range result.Items {
		var item edgeItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, pkgerrors.NewDatabaseError("unmarshal edge", err)
		}
		edge, err := item.toEntity()
		if err != nil {
			return nil, err
		}
		out.Edges = append(out.Edges, edge)
	}
	if out.NextCursor, err = encodeCursor(result.LastEvaluatedKey); err != nil {
		return nil, pkgerrors.NewDatabaseError("encode page cursor", err)
	}
	return out, nil
}

// DeleteByPod removes every edge in the flow touching podID and returns
// the removed edges for compensation
func (r *EdgeRepository) DeleteByPod(ctx context.Context, flowID, podID string) ([]*entities.Edge, error) {
	var touching []*entities.Edge
	cursor := ""
	for {
		page, err := r.ListByFlow(ctx, flowID, ports.Page{Cursor: cursor})
		if err != nil {
			return nil, err
		}
		for _, edge := range page.Edges {
			if edge.Touches(podID) {
				touching = append(touching, edge)
			}
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if len(touching) == 0 {
		return nil, nil
	}

	for start := 0; start < len(touching); start += batchWriteChunk {
		end := start + batchWriteChunk
		if end > len(touching) {
			end = len(touching)
		}

		requests := make([]types.WriteRequest, 0, end-start)
		for _, edge := range touching[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: flowPK(flowID)},
						"SK": &types.AttributeValueMemberS{Value: edgeSK(edge.ID)},
					},
				},
			})
		}

		unprocessed := map[string][]types.WriteRequest{r.tableName: requests}
		for len(unprocessed[r.tableName]) > 0 {
			result, err := r.client.BatchWriteItem(ctx, &awsdynamodb.BatchWriteItemInput{
				RequestItems: unprocessed,
			})
			if err != nil {
				return nil, pkgerrors.NewDatabaseError("batch delete edges", err)
			}
			unprocessed = result.UnprocessedItems
		}
	}

	r.logger.Debug("edges removed for pod",
		zap.String("flow_id", flowID),
		zap.String("pod_id", podID),
		zap.Int("count", len(touching)))
	return touching, nil
}
