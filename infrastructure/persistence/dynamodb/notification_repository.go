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

	"flopods-backend/application/ports"
	"flopods-backend/domain/core/entities"
	pkgerrors "flopods-backend/pkg/errors"
)

// NotificationRepository implements ports.NotificationRepository. Items live
// under the user partition; GSI1 orders them by creation time so listing
// newest-first is a single reverse query.
type NotificationRepository struct {
	client    *awsdynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewNotificationRepository creates a notification repository
func NewNotificationRepository(client *awsdynamodb.Client, tableName string, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

type notificationItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	GSI1PK     string `dynamodbav:"GSI1PK"`
	GSI1SK     string `dynamodbav:"GSI1SK"`
	EntityType string `dynamodbav:"EntityType"`
	NotifID    string `dynamodbav:"NotifID"`
	UserID     string `dynamodbav:"UserID"`
	NotifType  string `dynamodbav:"NotifType"`
	Title      string `dynamodbav:"Title"`
	Body       string `dynamodbav:"Body,omitempty"`
	Target     string `dynamodbav:"Target,omitempty"`
	IsRead     bool   `dynamodbav:"IsRead"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
}

// timeSortLayout is a fixed-width RFC3339 form. GSI1SK is ordered as a
// string, and RFC3339Nano trims trailing fractional zeros, which breaks
// lexicographic ordering within a second.
const timeSortLayout = "2006-01-02T15:04:05.000000000Z07:00"

func toNotificationItem(n *entities.Notification) *notificationItem {
	createdAt := n.CreatedAt.UTC().Format(timeSortLayout)
	return &notificationItem{
		PK:         userPK(n.UserID),
		SK:         notifSK(n.ID),
		GSI1PK:     userPK(n.UserID),
		GSI1SK:     notifPrefix + createdAt + "#" + n.ID,
		EntityType: "NOTIFICATION",
		NotifID:    n.ID,
		UserID:     n.UserID,
		NotifType:  string(n.Type),
		Title:      n.Title,
		Body:       n.Body,
		Target:     n.Target,
		IsRead:     n.Read,
		CreatedAt:  createdAt,
	}
}

func (item *notificationItem) toEntity() (*entities.Notification, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse notification timestamp", err)
	}
	return &entities.Notification{
		ID:        item.NotifID,
		UserID:    item.UserID,
		Type:      entities.NotificationType(item.NotifType),
		Title:     item.Title,
		Body:      item.Body,
		Target:    item.Target,
		Read:      item.IsRead,
		CreatedAt: createdAt,
	}, nil
}

// Save writes the notification, overwriting any previous state
func (r *NotificationRepository) Save(ctx context.Context, n *entities.Notification) error {
	av, err := attributevalue.MarshalMap(toNotificationItem(n))
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal notification", err)
	}

	_, err = r.client.PutItem(ctx, &awsdynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	if err != nil {
		return pkgerrors.NewDatabaseError("save notification", err)
	}
	return nil
}

// Get fetches one notification by owner and id
func (r *NotificationRepository) Get(ctx context.Context, userID, notificationID string) (*entities.Notification, error) {
	result, err := r.client.GetItem(ctx, &awsdynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: notifSK(notificationID)},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get notification", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("notification")
	}

	var item notificationItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal notification", err)
	}
	return item.toEntity()
}

// Delete removes a notification. Missing items are a not-found error.
func (r *NotificationRepository) Delete(ctx context.Context, userID, notificationID string) error {
	_, err := r.client.DeleteItem(ctx, &awsdynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: notifSK(notificationID)},
		},
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return pkgerrors.NewNotFoundError("notification")
		}
		return pkgerrors.NewDatabaseError("delete notification", err)
	}
	return nil
}

// ListByUser pages through a user's notifications newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, page ports.Page) (*ports.NotificationPage, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(userPK(userID))).
		And(expression.Key("GSI1SK").BeginsWith(notifPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("build notification query", err)
	}

	input := &awsdynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(GSI1Name),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	}
	if page.Limit > 0 {
		input.Limit = aws.Int32(int32(page.Limit))
	}
	if page.Cursor != "" {
		startKey, err := decodeCursor(page.Cursor)
		if err != nil {
			return nil, err
		}
		input.ExclusiveStartKey = startKey
	}

	result, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("list notifications", err)
	}

	notifications := make([]*entities.Notification, 0, len(result.Items))
	for _, raw := range result.Items {
		var item notificationItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, pkgerrors.NewDatabaseError("unmarshal notification", err)
		}
		n, err := item.toEntity()
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	out := &ports.NotificationPage{Notifications: notifications}
	if result.LastEvaluatedKey != nil {
		cursor, err := encodeCursor(result.LastEvaluatedKey)
		if err != nil {
			return nil, err
		}
		out.NextCursor = cursor
	}
	return out, nil
}

// CountUnread returns the number of notifications the user has not read
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(userPK(userID))).
		And(expression.Key("SK").BeginsWith(notifPrefix))
	filter := expression.Name("IsRead").Equal(expression.Value(false))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return 0, pkgerrors.NewDatabaseError("build unread count query", err)
	}

	count := 0
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &awsdynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			Select:                    types.SelectCount,
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return 0, pkgerrors.NewDatabaseError("count unread notifications", err)
		}
		count += int(result.Count)

		if result.LastEvaluatedKey == nil {
			return count, nil
		}
		startKey = result.LastEvaluatedKey
	}
}

// MarkAllRead flips every unread notification and reports how many changed
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(userPK(userID))).
		And(expression.Key("SK").BeginsWith(notifPrefix))
	filter := expression.Name("IsRead").Equal(expression.Value(false))
	proj := expression.NamesList(expression.Name("PK"), expression.Name("SK"))
	expr, err := expression.NewBuilder().
		WithKeyCondition(keyCond).
		WithFilter(filter).
		WithProjection(proj).
		Build()
	if err != nil {
		return 0, pkgerrors.NewDatabaseError("build mark-all query", err)
	}

	changed := 0
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &awsdynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			FilterExpression:          expr.Filter(),
			ProjectionExpression:      expr.Projection(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return changed, pkgerrors.NewDatabaseError("query unread notifications", err)
		}

		for _, raw := range result.Items {
			_, err := r.client.UpdateItem(ctx, &awsdynamodb.UpdateItemInput{
				TableName: aws.String(r.tableName),
				Key: map[string]types.AttributeValue{
					"PK": raw["PK"],
					"SK": raw["SK"],
				},
				UpdateExpression:    aws.String("SET IsRead = :t"),
				ConditionExpression: aws.String("attribute_exists(PK)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":t": &types.AttributeValueMemberBOOL{Value: true},
				},
			})
			if err != nil {
				// Deleted between query and update, skip it
				var conditionFailed *types.ConditionalCheckFailedException
				if errors.As(err, &conditionFailed) {
					continue
				}
				return changed, pkgerrors.NewDatabaseError("mark notification read", err)
			}
			changed++
		}

		if result.LastEvaluatedKey == nil {
			return changed, nil
		}
		startKey = result.LastEvaluatedKey
	}
}
