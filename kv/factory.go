package kv

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Backend selects a Store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendDynamo Backend = "dynamo"
)

// FactoryConfig carries what the factory needs to build a Store.
type FactoryConfig struct {
	Backend Backend
	Region  string
	// Specs maps physical table names to their key layout. Only the
	// DynamoDB backend needs it.
	Specs map[string]TableSpec
}

// NewStore builds a Store from configuration: the guarded in-process
// map for local development and tests, or DynamoDB for deployed
// functions.
func NewStore(ctx context.Context, cfg FactoryConfig) (Store, error) {
	switch Backend(strings.ToLower(string(cfg.Backend))) {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.Specs), nil
	default:
		return nil, fmt.Errorf("unsupported kv backend: %s", cfg.Backend)
	}
}
