package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"flopods-backend/domain/core/entities"
	pkgerrors "flopods-backend/pkg/errors"
)

// FlowRepository implements ports.FlowRepository. Flow metadata lives
// under the workspace partition; the flow's own partition holds its pods
// and edges and is emptied when the flow is deleted.
type FlowRepository struct {
	client    *awsdynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewFlowRepository creates a flow repository
func NewFlowRepository(client *awsdynamodb.Client, tableName string, logger *zap.Logger) *FlowRepository {
	return &FlowRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// flowItem is the stored form of a flow's metadata
type flowItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	GSI1PK      string `dynamodbav:"GSI1PK"`
	GSI1SK      string `dynamodbav:"GSI1SK"`
	EntityType  string `dynamodbav:"EntityType"`
	FlowID      string `dynamodbav:"FlowID"`
	WorkspaceID string `dynamodbav:"WorkspaceID"`
	Name        string `dynamodbav:"Name"`
	CreatedBy   string `dynamodbav:"CreatedBy"`
	CreatedAt   string `dynamodbav:"CreatedAt"`
	UpdatedAt   string `dynamodbav:"UpdatedAt"`
}

func toFlowItem(flow *entities.Flow) *flowItem {
	return &flowItem{
		PK:          workspacePK(flow.WorkspaceID),
		SK:          flowPrefix + flow.ID,
		GSI1PK:      flowPK(flow.ID),
		GSI1SK:      metadataSK,
		EntityType:  "FLOW",
		FlowID:      flow.ID,
		WorkspaceID: flow.WorkspaceID,
		Name:        flow.Name,
		CreatedBy:   flow.CreatedBy,
		CreatedAt:   flow.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   flow.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func (item *flowItem) toEntity() (*entities.Flow, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse flow timestamp", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse flow timestamp", err)
	}
	return &entities.Flow{
		ID:          item.FlowID,
		WorkspaceID: item.WorkspaceID,
		Name:        item.Name,
		CreatedBy:   item.CreatedBy,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

// Get resolves a flow by id through GSI1
func (r *FlowRepository) Get(ctx context.Context, flowID string) (*entities.Flow, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(flowPK(flowID))).
		And(expression.Key("GSI1SK").Equal(expression.Value(metadataSK)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("build flow query", err)
	}

	result, err := r.client.Query(ctx, &awsdynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(GSI1Name),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get flow", err)
	}
	if len(result.Items) == 0 {
		return nil, pkgerrors.NewNotFoundError("flow")
	}

	var item flowItem
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal flow", err)
	}
	return item.toEntity()
}

// Create stores a new flow, refusing to overwrite an existing one
func (r *FlowRepository) Create(ctx context.Context, flow *entities.Flow) error {
	av, err := attributevalue.MarshalMap(toFlowItem(flow))
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal flow", err)
	}

	_, err = r.client.PutItem(ctx, &awsdynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return pkgerrors.NewVersionConflictError("flow", 0)
		}
		return pkgerrors.NewDatabaseError("create flow", err)
	}
	return nil
}

// Delete removes the flow's metadata and everything in its partition
func (r *FlowRepository) Delete(ctx context.Context, flowID string) error {
	flow, err := r.Get(ctx, flowID)
	if err != nil {
		return err
	}

	if err := r.drainPartition(ctx, flowID); err != nil {
		return err
	}

	_, err = r.client.DeleteItem(ctx, &awsdynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: workspacePK(flow.WorkspaceID)},
			"SK": &types.AttributeValueMemberS{Value: flowPrefix + flowID},
		},
	})
	if err != nil {
		return pkgerrors.NewDatabaseError("delete flow", err)
	}

	r.logger.Info("flow deleted",
		zap.String("flow_id", flowID),
		zap.String("workspace_id", flow.WorkspaceID))
	return nil
}

// drainPartition removes every pod and edge item under the flow partition
func (r *FlowRepository) drainPartition(ctx context.Context, flowID string) error {
	keyCond := expression.Key("PK").Equal(expression.Value(flowPK(flowID)))
	proj := expression.NamesList(expression.Name("PK"), expression.Name("SK"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithProjection(proj).Build()
	if err != nil {
		return pkgerrors.NewDatabaseError("build partition query", err)
	}

	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &awsdynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ProjectionExpression:      expr.Projection(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return pkgerrors.NewDatabaseError("query flow partition", err)
		}

		for start := 0; start < len(result.Items); start += batchWriteChunk {
			end := start + batchWriteChunk
			if end > len(result.Items) {
				end = len(result.Items)
			}

			requests := make([]types.WriteRequest, 0, end-start)
			for _, raw := range result.Items[start:end] {
				requests = append(requests, types.WriteRequest{
					DeleteRequest: &types.DeleteRequest{
						Key: map[string]types.AttributeValue{
							"PK": raw["PK"],
							"SK": raw["SK"],
						},
					},
				})
			}

			unprocessed := map[string][]types.WriteRequest{r.tableName: requests}
			for len(unprocessed[r.tableName]) > 0 {
				batch, err := r.client.BatchWriteItem(ctx, &awsdynamodb.BatchWriteItemInput{
					RequestItems: unprocessed,
				})
				if err != nil {
					return pkgerrors.NewDatabaseError("drain flow partition", err)
				}
				unprocessed = batch.UnprocessedItems
			}
		}

		if result.LastEvaluatedKey == nil {
			return nil
		}
		startKey = result.LastEvaluatedKey
	}
}

// ListByWorkspace returns all flows under a workspace
func (r *FlowRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*entities.Flow, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(workspacePK(workspaceID))).
		And(expression.Key("SK").BeginsWith(flowPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("build flow list query", err)
	}

	var flows []*entities.Flow
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &awsdynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("list flows", err)
		}

		for _, raw := range result.Items {
			var item flowItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, pkgerrors.NewDatabaseError("unmarshal flow", err)
			}
			flow, err := item.toEntity()
			if err != nil {
				return nil, err
			}
			flows = append(flows, flow)
		}

		if result.LastEvaluatedKey == nil {
			return flows, nil
		}
		startKey = result.LastEvaluatedKey
	}
}
