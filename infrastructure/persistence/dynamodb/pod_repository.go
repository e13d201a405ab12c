package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"flopods-backend/application/ports"
	"flopods-backend/domain/core/entities"
	"flopods-backend/domain/core/valueobjects"
	pkgerrors "flopods-backend/pkg/errors"
)

// PodRepository implements ports.PodRepository on the single table. Every
// mutating write is conditional: creates require the item to be absent,
// updates require the stored version to match the caller's.
type PodRepository struct {
	client    *awsdynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewPodRepository creates a pod repository
func NewPodRepository(client *awsdynamodb.Client, tableName string, logger *zap.Logger) *PodRepository {
	return &PodRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// podItem is the stored form of a pod
type podItem struct {
	PK          string   `dynamodbav:"PK"`
	SK          string   `dynamodbav:"SK"`
	GSI1PK      string   `dynamodbav:"GSI1PK"`
	GSI1SK      string   `dynamodbav:"GSI1SK"`
	EntityType  string   `dynamodbav:"EntityType"`
	PodID       string   `dynamodbav:"PodID"`
	FlowID      string   `dynamodbav:"FlowID"`
	WorkspaceID string   `dynamodbav:"WorkspaceID"`
	PodType     string   `dynamodbav:"PodType"`
	PositionX   float64  `dynamodbav:"PositionX"`
	PositionY   float64  `dynamodbav:"PositionY"`
	Content     string   `dynamodbav:"Content"`
	ContextPods []string `dynamodbav:"ContextPods,omitempty"`
	Version     int      `dynamodbav:"Version"`
	CreatedBy   string   `dynamodbav:"CreatedBy"`
	CreatedAt   string   `dynamodbav:"CreatedAt"`
	UpdatedAt   string   `dynamodbav:"UpdatedAt"`
	LockedBy    string   `dynamodbav:"LockedBy,omitempty"`
	LockedAt    string   `dynamodbav:"LockedAt,omitempty"`
}

func toPodItem(pod *entities.Pod) (*podItem, error) {
	content, err := json.Marshal(pod.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pod content: %w", err)
	}

	item := &podItem{
		PK:          flowPK(pod.FlowID),
		SK:          podSK(pod.ID),
		GSI1PK:      podPrefix + pod.ID,
		GSI1SK:      metadataSK,
		EntityType:  "POD",
		PodID:       pod.ID,
		FlowID:      pod.FlowID,
		WorkspaceID: pod.WorkspaceID,
		PodType:     string(pod.Type),
		PositionX:   pod.Position.X,
		PositionY:   pod.Position.Y,
		Content:     string(content),
		ContextPods: pod.ContextPods,
		Version:     pod.Version,
		CreatedBy:   pod.CreatedBy,
		CreatedAt:   pod.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   pod.UpdatedAt.Format(time.RFC3339Nano),
		LockedBy:    pod.LockedBy,
	}
	if pod.LockedAt != nil {
		// Fixed-width form, the staleness condition compares it as a string.
		item.LockedAt = pod.LockedAt.UTC().Format(time.RFC3339)
	}
	return item, nil
}

func (item *podItem) toEntity() (*entities.Pod, error) {
	var content valueobjects.PodContent
	if err := json.Unmarshal([]byte(item.Content), &content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pod content: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid CreatedAt on pod %s: %w", item.PodID, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid UpdatedAt on pod %s: %w", item.PodID, err)
	}

	pod := &entities.Pod{
		ID:          item.PodID,
		FlowID:      item.FlowID,
		WorkspaceID: item.WorkspaceID,
		Type:        valueobjects.PodKind(item.PodType),
		Position:    valueobjects.Position{X: item.PositionX, Y: item.PositionY},
		Content:     content,
		ContextPods: item.ContextPods,
		Version:     item.Version,
		CreatedBy:   item.CreatedBy,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
		LockedBy:    item.LockedBy,
	}
	if item.LockedAt != "" {
		lockedAt, err := time.Parse(time.RFC3339Nano, item.LockedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid LockedAt on pod %s: %w", item.PodID, err)
		}
		pod.LockedAt = &lockedAt
	}
	return pod, nil
}

// Get fetches a pod by flow and id
func (r *PodRepository) Get(ctx context.Context, flowID, podID string) (*entities.Pod, error) {
	result, err := r.client.GetItem(ctx, &awsdynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: flowPK(flowID)},
			"SK": &types.AttributeValueMemberS{Value: podSK(podID)},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get pod", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("pod")
	}

	var item podItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal pod", err)
	}
	return item.toEntity()
}

// FindByID resolves a pod through GSI1 when only its id is known
func (r *PodRepository) FindByID(ctx context.Context, podID string) (*entities.Pod, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(podPrefix + podID)).
		And(expression.Key("GSI1SK").Equal(expression.Value(metadataSK)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("build pod query", err)
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
		return nil, pkgerrors.NewDatabaseError("find pod", err)
	}
	if len(result.Items) == 0 {
		return nil, pkgerrors.NewNotFoundError("pod")
	}

	var item podItem
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal pod", err)
	}
	return item.toEntity()
}

// Put writes a pod conditionally on expectedVersion. Creation puts a full
// item guarded by attribute_not_exists; updates touch only the content
// fields, so the lock annotation stays whatever the lock store last wrote.
func (r *PodRepository) Put(ctx context.Context, pod *entities.Pod, expectedVersion int) (*entities.Pod, error) {
	if expectedVersion == 0 {
		return r.create(ctx, pod)
	}
	return r.update(ctx, pod, expectedVersion)
}

func (r *PodRepository) create(ctx context.Context, pod *entities.Pod) (*entities.Pod, error) {
	created := pod.Clone()
	created.Version = 1
	created.LockedBy = ""
	created.LockedAt = nil

	item, err := toPodItem(created)
	if err != nil {
		return nil, err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("marshal pod", err)
	}

	_, err = r.client.PutItem(ctx, &awsdynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil, pkgerrors.NewVersionConflictError("pod", 0)
		}
		return nil, pkgerrors.NewDatabaseError("create pod", err)
	}

	r.logger.Debug("pod created",
		zap.String("pod_id", created.ID),
		zap.String("flow_id", created.FlowID))
	return created, nil
}

func (r *PodRepository) update(ctx context.Context, pod *entities.Pod, expectedVersion int) (*entities.Pod, error) {
	content, err := json.Marshal(pod.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pod content: %w", err)
	}

	update := expression.
		Set(expression.Name("PositionX"), expression.Value(pod.Position.X)).
		Set(expression.Name("PositionY"), expression.Value(pod.Position.Y)).
		Set(expression.Name("Content"), expression.Value(string(content))).
		Set(expression.Name("ContextPods"), expression.Value(pod.ContextPods)).
		Set(expression.Name("Version"), expression.Value(expectedVersion+1)).
		Set(expression.Name("UpdatedAt"), expression.Value(time.Now().UTC().Format(time.RFC3339Nano)))
	condition := expression.AttributeExists(expression.Name("PK")).
		And(expression.Name("Version").Equal(expression.Value(expectedVersion)))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("build pod update", err)
	}

	result, err := r.client.UpdateItem(ctx, &awsdynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: flowPK(pod.FlowID)},
			"SK": &types.AttributeValueMemberS{Value: podSK(pod.ID)},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil, r.classifyConflict(ctx, pod.FlowID, pod.ID, expectedVersion)
		}
		return nil, pkgerrors.NewDatabaseError("update pod", err)
	}

	var item podItem
	if err := attributevalue.UnmarshalMap(result.Attributes, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal pod", err)
	}
	return item.toEntity()
}

// classifyConflict distinguishes a missing item from a stale version after
// a conditional check failure
func (r *PodRepository) classifyConflict(ctx context.Context, flowID, podID string, expectedVersion int) error {
	if _, err := r.Get(ctx, flowID, podID); pkgerrors.IsNotFound(err) {
		return pkgerrors.NewNotFoundError("pod")
	}
	return pkgerrors.NewVersionConflictError("pod", expectedVersion)
}

// Move relocates a pod into targetFlowID as one transaction: a conditional
// delete of the source item plus a guarded put of the target item. Either
// both happen or neither, so the pod is never visible under two flows.
func (r *PodRepository) Move(ctx context.Context, pod *entities.Pod, targetFlowID string, expectedVersion int) (*entities.Pod, error) {
	sourceFlowID := pod.FlowID

	moved := pod.Clone()
	moved.FlowID = targetFlowID
	moved.Version = expectedVersion + 1
	moved.UpdatedAt = time.Now().UTC()

	item, err := toPodItem(moved)
	if err != nil {
		return nil, err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("marshal pod", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &awsdynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Delete: &types.Delete{
					TableName: aws.String(r.tableName),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: flowPK(sourceFlowID)},
						"SK": &types.AttributeValueMemberS{Value: podSK(pod.ID)},
					},
					ConditionExpression: aws.String("attribute_exists(PK) AND Version = :v"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":v": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
					},
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(r.tableName),
					Item:                av,
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					return nil, r.classifyConflict(ctx, sourceFlowID, pod.ID, expectedVersion)
				}
			}
		}
		return nil, pkgerrors.NewDatabaseError("move pod", err)
	}

	r.logger.Debug("pod moved",
		zap.String("pod_id", moved.ID),
		zap.String("source_flow_id", sourceFlowID),
		zap.String("target_flow_id", targetFlowID))
	return moved, nil
}

// Delete removes a pod
func (r *PodRepository) Delete(ctx context.Context, flowID, podID string) error {
	_, err := r.client.DeleteItem(ctx, &awsdynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: flowPK(flowID)},
			"SK": &types.AttributeValueMemberS{Value: podSK(podID)},
		},
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return pkgerrors.NewNotFoundError("pod")
		}
		return pkgerrors.NewDatabaseError("delete pod", err)
	}
	return nil
}

// ListByFlow pages through a flow's pods in SK order
func (r *PodRepository) ListByFlow(ctx context.Context, flowID string, page ports.Page) (*ports.PodPage, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(flowPK(flowID))).
		And(expression.Key("SK").BeginsWith(podPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("build pod list query", err)
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
		return nil, pkgerrors.NewDatabaseError("list pods", err)
	}

	out := &ports.PodPage{Pods: make([]*entities.Pod, 0, len(result.Items))}
	for _, raw := range result.Items {
		var item podItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, pkgerrors.NewDatabaseError("unmarshal pod", err)
		}
		pod, err := item.toEntity()
		if err != nil {
			return nil, err
		}
		out.Pods = append(out.Pods, pod)
	}
	if out.NextCursor, err = encodeCursor(result.LastEvaluatedKey); err != nil {
		return nil, pkgerrors.NewDatabaseError("encode page cursor", err)
	}
	return out, nil
}

// CountByFlow returns the number of pods in a flow
func (r *PodRepository) CountByFlow(ctx context.Context, flowID string) (int, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(flowPK(flowID))).
		And(expression.Key("SK").BeginsWith(podPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return 0, pkgerrors.NewDatabaseError("build pod count query", err)
	}

	total := 0
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &awsdynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			Select:                    types.SelectCount,
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return 0, pkgerrors.NewDatabaseError("count pods", err)
		}
		total += int(result.Count)
		if result.LastEvaluatedKey == nil {
			return total, nil
		}
		startKey = result.LastEvaluatedKey
	}
}
