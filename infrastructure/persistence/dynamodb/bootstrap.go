package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const tableActiveTimeout = 30 * time.Second

// EnsureTable creates the single table with GSI1 when it does not exist and
// waits for it to become active. It is meant for local DynamoDB; provisioned
// environments manage the table outside the process.
func EnsureTable(ctx context.Context, client *awsdynamodb.Client, table string, logger *zap.Logger) error {
	_, err := client.DescribeTable(ctx, &awsdynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe table %s: %w", table, err)
	}

	logger.Info("creating table", zap.String("table", table))

	_, err = client.CreateTable(ctx, &awsdynamodb.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("SK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("GSI1PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("GSI1SK"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(GSI1Name),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("GSI1PK"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("GSI1SK"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	})
	if err != nil {
		var exists *types.ResourceInUseException
		if errors.As(err, &exists) {
			// Another process won the race, wait for its table.
			return waitTableActive(ctx, client, table)
		}
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	return waitTableActive(ctx, client, table)
}

func waitTableActive(ctx context.Context, client *awsdynamodb.Client, table string) error {
	waiter := awsdynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &awsdynamodb.DescribeTableInput{
		TableName: aws.String(table),
	}, tableActiveTimeout); err != nil {
		return fmt.Errorf("table %s did not become active: %w", table, err)
	}
	return nil
}
