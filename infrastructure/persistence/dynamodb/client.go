// Package dynamodb implements the persistence ports on a single DynamoDB
// table.
//
// Layout: pods and edges live under their flow partition (PK FLOW#<id>,
// SK POD#<id> / EDGE#<id>), flow metadata under its workspace partition,
// notifications under their user partition. GSI1 resolves pods and flows
// by bare id.
package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// GSI1Name is the index resolving entities by bare id
const GSI1Name = "GSI1"

// NewClient creates a DynamoDB client for region. A non-empty endpoint
// overrides the resolved one, which is how local DynamoDB is targeted in
// development.
func NewClient(ctx context.Context, region, endpoint string) (*awsdynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var opts []func(*awsdynamodb.Options)
	if endpoint != "" {
		opts = append(opts, func(o *awsdynamodb.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	return awsdynamodb.NewFromConfig(cfg, opts...), nil
}

// key prefixes of the single-table layout
const (
	flowPrefix      = "FLOW#"
	podPrefix       = "POD#"
	edgePrefix      = "EDGE#"
	workspacePrefix = "WORKSPACE#"
	userPrefix      = "USER#"
	notifPrefix     = "NOTIF#"
	metadataSK      = "METADATA"
)

func flowPK(flowID string) string      { return flowPrefix + flowID }
func podSK(podID string) string        { return podPrefix + podID }
func edgeSK(edgeID string) string      { return edgePrefix + edgeID }
func workspacePK(wsID string) string   { return workspacePrefix + wsID }
func userPK(userID string) string      { return userPrefix + userID }
func notifSK(notifID string) string    { return notifPrefix + notifID }
