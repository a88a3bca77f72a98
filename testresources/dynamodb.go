package testresources

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/mainlaunch/mainlaunch/framework"
	"github.com/mainlaunch/mainlaunch/framework/resources"
)

const (
	tablePartitionKey = "namespace"
	tableSortKey      = "key"
)

// DynamoDBAPI is the part of the DynamoDB client this resource uses.
type DynamoDBAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
}

// DynamoDB recreates an empty table, keyed by "namespace" and "key", on a DynamoDB endpoint such
// as DynamoDB Local, and drops it again on Close.
//
// Arguments: "endpoint" (default http://localhost:8000), "region" (default us-east-1), "table"
// (default "mainlaunch"). Static dummy credentials are used.
// Properties: dynamodb.endpoint, dynamodb.region, dynamodb.table.
type DynamoDB struct {
	endpoint string
	region   string
	table    string
	client   DynamoDBAPI
	created  bool
	logger   framework.Logger
}

func (d *DynamoDB) Init(ic resources.InitContext) error {
	d.endpoint = ic.Arg("endpoint", "http://localhost:8000")
	d.region = ic.Arg("region", "us-east-1")
	d.table = ic.Arg("table", "mainlaunch")
	d.logger = framework.OrNullLogger(ic.Logger)
	return nil
}

func (d *DynamoDB) Start(ctx context.Context) (map[string]string, error) {
	if d.client == nil {
		client, err := d.newClient(ctx)
		if err != nil {
			return nil, err
		}
		d.client = client
	}

	if err := d.dropTable(ctx); err != nil {
		return nil, err
	}
	_, err := d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(d.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(tablePartitionKey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(tableSortKey), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(tablePartitionKey), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(tableSortKey), KeyType: types.KeyTypeRange},
		},
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(1),
			WriteCapacityUnits: aws.Int64(1),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create table %q: %w", d.table, err)
	}
	d.created = true
	d.logger.Printf("Created table %s at %s", d.table, d.endpoint)

	return map[string]string{
		"dynamodb.endpoint": d.endpoint,
		"dynamodb.region":   d.region,
		"dynamodb.table":    d.table,
	}, nil
}

func (d *DynamoDB) newClient(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(d.region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(d.endpoint)
	}), nil
}

func (d *DynamoDB) dropTable(ctx context.Context) error {
	_, err := d.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(d.table)})
	var notFound *types.ResourceNotFoundException
	if err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("failed to delete table %q: %w", d.table, err)
	}
	return nil
}

// Handle returns the DynamoDBAPI client, or nil before Start.
func (d *DynamoDB) Handle() any { return d.client }

func (d *DynamoDB) Close() error {
	if !d.created {
		return nil
	}
	d.created = false
	return d.dropTable(context.Background())
}
