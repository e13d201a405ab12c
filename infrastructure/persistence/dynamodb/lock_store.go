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

	pkgerrors "flopods-backend/pkg/errors"
)

// LockStore persists the advisory lock annotation on the pod item with
// conditional writes, so two sessions racing for the same pod cannot both
// win. The pod repository never touches these attributes.
type LockStore struct {
	client    *awsdynamodb.Client
	tableName string
	pods      *PodRepository
	logger    *zap.Logger
}

// NewLockStore creates a lock store sharing the pod repository's table
func NewLockStore(client *awsdynamodb.Client, tableName string, pods *PodRepository, logger *zap.Logger) *LockStore {
	return &LockStore{
		client:    client,
		tableName: tableName,
		pods:      pods,
		logger:    logger,
	}
}

// Acquire writes the lock if the pod is unlocked, already held by holder,
// or the existing lock predates staleBefore.
func (s *LockStore) Acquire(ctx context.Context, podID, holder string, staleBefore, now time.Time) error {
	pod, err := s.pods.FindByID(ctx, podID)
	if err != nil {
		return err
	}

	// LockedAt is compared as a string inside the condition, so it uses the
	// fixed-width RFC3339 form; RFC3339Nano trims trailing zeros and breaks
	// lexicographic ordering within a second.
	update := expression.
		Set(expression.Name("LockedBy"), expression.Value(holder)).
		Set(expression.Name("LockedAt"), expression.Value(now.UTC().Format(time.RFC3339)))
	condition := expression.AttributeExists(expression.Name("PK")).
		And(expression.Or(
			expression.AttributeNotExists(expression.Name("LockedBy")),
			expression.Name("LockedBy").Equal(expression.Value(holder)),
			expression.Name("LockedAt").LessThan(expression.Value(staleBefore.UTC().Format(time.RFC3339))),
		))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
	if err != nil {
		return pkgerrors.NewDatabaseError("build lock update", err)
	}

	_, err = s.client.UpdateItem(ctx, &awsdynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: flowPK(pod.FlowID)},
			"SK": &types.AttributeValueMemberS{Value: podSK(podID)},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return s.lockHeldError(conditionFailed, podID)
		}
		return pkgerrors.NewDatabaseError("acquire lock", err)
	}

	s.logger.Debug("lock written",
		zap.String("pod_id", podID),
		zap.String("holder", holder))
	return nil
}

// lockHeldError extracts the current holder from the failed write, falling
// back to a fresh read
func (s *LockStore) lockHeldError(failure *types.ConditionalCheckFailedException, podID string) error {
	if failure.Item != nil {
		var item podItem
		if err := attributevalue.UnmarshalMap(failure.Item, &item); err == nil && item.LockedBy != "" {
			return pkgerrors.NewLockHeldError(podID, item.LockedBy)
		}
	}
	return pkgerrors.NewLockHeldError(podID, "unknown")
}

// Release clears the lock. Releasing an unlocked pod succeeds; a lock held
// by someone else is refused.
func (s *LockStore) Release(ctx context.Context, podID, holder string) error {
	pod, err := s.pods.FindByID(ctx, podID)
	if err != nil {
		return err
	}
	if !pod.Locked() {
		return nil
	}

	update := expression.
		Remove(expression.Name("LockedBy")).
		Remove(expression.Name("LockedAt"))
	condition := expression.Name("LockedBy").Equal(expression.Value(holder))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
	if err != nil {
		return pkgerrors.NewDatabaseError("build unlock update", err)
	}

	_, err = s.client.UpdateItem(ctx, &awsdynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: flowPK(pod.FlowID)},
			"SK": &types.AttributeValueMemberS{Value: podSK(podID)},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			// Either someone else holds it now, or it was released in
			// between; the second case is a success.
			current, getErr := s.pods.FindByID(ctx, podID)
			if getErr == nil && !current.Locked() {
				return nil
			}
			return pkgerrors.NewNotLockHolderError(podID)
		}
		return pkgerrors.NewDatabaseError("release lock", err)
	}

	s.logger.Debug("lock cleared",
		zap.String("pod_id", podID),
		zap.String("holder", holder))
	return nil
}
