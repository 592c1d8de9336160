package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Reserved item fields on the table. Everything else is entity payload.
const (
	fieldPK         = "PK"
	fieldSK         = "SK"
	fieldGSI1PK     = "GSI1PK"
	fieldGSI1SK     = "GSI1SK"
	fieldEntityType = "entityType"
)

// DynamoConfig holds connection settings for the DynamoDB backend.
type DynamoConfig struct {
	TableName string
	IndexName string
	Region    string

	// Endpoint overrides the service endpoint for local development.
	Endpoint string
	// Static credentials, used only with a local endpoint.
	AccessKey string
	SecretKey string
}

// DynamoStore implements Store against a single DynamoDB table with one
// global secondary index.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
	index  string
}

// NewDynamoStore connects to DynamoDB and returns the store.
func NewDynamoStore(ctx context.Context, cfg DynamoConfig) (*DynamoStore, error) {
	if cfg.TableName == "" {
		return nil, fmt.Errorf("dynamo store: table name is required")
	}
	if cfg.IndexName == "" {
		cfg.IndexName = "GSI1"
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Endpoint != "" && cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("dynamo store: load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &DynamoStore{client: client, table: cfg.TableName, index: cfg.IndexName}, nil
}

func (s *DynamoStore) marshalItem(item Item) (map[string]types.AttributeValue, error) {
	flat := make(map[string]any, len(item.Attributes)+5)
	for k, v := range item.Attributes {
		flat[k] = v
	}
	flat[fieldPK] = item.PK
	flat[fieldSK] = item.SK
	flat[fieldEntityType] = item.EntityType
	if item.GSI1PK != "" {
		flat[fieldGSI1PK] = item.GSI1PK
		flat[fieldGSI1SK] = item.GSI1SK
	}
	av, err := attributevalue.MarshalMap(flat)
	if err != nil {
		return nil, fmt.Errorf("dynamo store: marshal item: %w", err)
	}
	return av, nil
}

func unmarshalItem(av map[string]types.AttributeValue) (Item, error) {
	flat := make(map[string]any, len(av))
	if err := attributevalue.UnmarshalMap(av, &flat); err != nil {
		return Item{}, fmt.Errorf("dynamo store: unmarshal item: %w", err)
	}
	item := Item{Attributes: flat}
	if v, ok := flat[fieldPK].(string); ok {
		item.PK = v
	}
	if v, ok := flat[fieldSK].(string); ok {
		item.SK = v
	}
	if v, ok := flat[fieldGSI1PK].(string); ok {
		item.GSI1PK = v
	}
	if v, ok := flat[fieldGSI1SK].(string); ok {
		item.GSI1SK = v
	}
	if v, ok := flat[fieldEntityType].(string); ok {
		item.EntityType = v
	}
	for _, reserved := range []string{fieldPK, fieldSK, fieldGSI1PK, fieldGSI1SK, fieldEntityType} {
		delete(flat, reserved)
	}
	return item, nil
}

func keyOf(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		fieldPK: &types.AttributeValueMemberS{Value: pk},
		fieldSK: &types.AttributeValueMemberS{Value: sk},
	}
}

// Put implements Store.
func (s *DynamoStore) Put(ctx context.Context, item Item) error {
	av, err := s.marshalItem(item)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("dynamo store: put: %w", err)
	}
	return nil
}

// PutConditional implements Store.
func (s *DynamoStore) PutConditional(ctx context.Context, item Item) error {
	av, err := s.marshalItem(item)
	if err != nil {
		return err
	}
	cond := expression.AttributeNotExists(expression.Name(fieldPK))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("dynamo store: build condition: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.table),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConditionFailed
		}
		return fmt.Errorf("dynamo store: conditional put: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *DynamoStore) Get(ctx context.Context, pk, sk string) (*Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       keyOf(pk, sk),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo store: get: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	item, err := unmarshalItem(out.Item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Delete implements Store.
func (s *DynamoStore) Delete(ctx context.Context, pk, sk string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       keyOf(pk, sk),
	})
	if err != nil {
		return fmt.Errorf("dynamo store: delete: %w", err)
	}
	return nil
}

// Query implements Store.
func (s *DynamoStore) Query(ctx context.Context, pk, skPrefix string) ([]Item, error) {
	return s.query(ctx, "", fieldPK, fieldSK, pk, skPrefix)
}

// QueryIndex implements Store.
func (s *DynamoStore) QueryIndex(ctx context.Context, gsi1pk, gsi1skPrefix string) ([]Item, error) {
	return s.query(ctx, s.index, fieldGSI1PK, fieldGSI1SK, gsi1pk, gsi1skPrefix)
}

func (s *DynamoStore) query(ctx context.Context, index, hashField, rangeField, hashValue, rangePrefix string) ([]Item, error) {
	keyCond := expression.Key(hashField).Equal(expression.Value(hashValue))
	if rangePrefix != "" {
		keyCond = keyCond.And(expression.Key(rangeField).BeginsWith(rangePrefix))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("dynamo store: build key condition: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if index != "" {
		input.IndexName = aws.String(index)
	}

	var items []Item
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo store: query: %w", err)
		}
		for _, av := range page.Items {
			item, err := unmarshalItem(av)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// IncrementCounter implements Store. Uses an ADD update expression so the
// increment is atomic and creates the item when absent.
func (s *DynamoStore) IncrementCounter(ctx context.Context, pk, sk, attribute string, delta int64) (int64, error) {
	update := expression.Add(expression.Name(attribute), expression.Value(delta)).
		Set(expression.Name("entityType"), expression.Value(EntityUsage))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return 0, fmt.Errorf("dynamo store: build update: %w", err)
	}
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       keyOf(pk, sk),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return 0, fmt.Errorf("dynamo store: increment: %w", err)
	}
	var flat map[string]any
	if err := attributevalue.UnmarshalMap(out.Attributes, &flat); err != nil {
		return 0, fmt.Errorf("dynamo store: unmarshal counter: %w", err)
	}
	switch v := flat[attribute].(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	}
	return 0, fmt.Errorf("dynamo store: counter attribute %q missing after increment", attribute)
}

// SetAttributes implements Store.
func (s *DynamoStore) SetAttributes(ctx context.Context, pk, sk string, attrs map[string]any) error {
	if len(attrs) == 0 {
		return nil
	}
	var update expression.UpdateBuilder
	first := true
	for name, value := range attrs {
		if first {
			update = expression.Set(expression.Name(name), expression.Value(value))
			first = false
			continue
		}
		update = update.Set(expression.Name(name), expression.Value(value))
	}
	cond := expression.AttributeExists(expression.Name(fieldPK))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("dynamo store: build update: %w", err)
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       keyOf(pk, sk),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("dynamo store: set attributes: %w", err)
	}
	return nil
}

// ScanEntity implements Store.
func (s *DynamoStore) ScanEntity(ctx context.Context, entityType string) ([]Item, error) {
	filter := expression.Name(fieldEntityType).Equal(expression.Value(entityType))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("dynamo store: build filter: %w", err)
	}

	var items []Item
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo store: scan: %w", err)
		}
		for _, av := range page.Items {
			item, err := unmarshalItem(av)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// HealthCheck implements Store.
func (s *DynamoStore) HealthCheck(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	if err != nil {
		return fmt.Errorf("dynamo store: describe table: %w", err)
	}
	return nil
}
