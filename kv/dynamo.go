package kv

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoClient is the slice of the DynamoDB API the store uses. The
// real *dynamodb.Client satisfies it; tests supply a fake.
type DynamoClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore backs the table contract with DynamoDB. It needs a
// TableSpec per table to know which attributes carry the keys.
type DynamoStore struct {
	client DynamoClient
	specs  map[string]TableSpec
}

// NewDynamoStore wraps a DynamoDB client. specs maps physical table
// name to its key attribute layout.
func NewDynamoStore(client DynamoClient, specs map[string]TableSpec) *DynamoStore {
	return &DynamoStore{client: client, specs: specs}
}

func (s *DynamoStore) spec(table string) (TableSpec, error) {
	spec, ok := s.specs[table]
	if !ok {
		return TableSpec{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return spec, nil
}

func (s *DynamoStore) keyAttrs(spec TableSpec, key Key) (map[string]types.AttributeValue, error) {
	attrs := map[string]types.AttributeValue{
		spec.PartitionAttr: &types.AttributeValueMemberS{Value: key.Partition},
	}
	if spec.SortAttr != "" {
		if !key.HasSort {
			return nil, fmt.Errorf("table requires sort attribute %q", spec.SortAttr)
		}
		attrs[spec.SortAttr] = &types.AttributeValueMemberS{Value: key.Sort}
	}
	return attrs, nil
}

func (s *DynamoStore) Put(ctx context.Context, table string, key Key, item Item) error {
	spec, err := s.spec(table)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return &StoreError{Op: "put", Table: table, Key: key, Err: err}
	}
	// key attributes always reflect the addressed key
	keyAttrs, err := s.keyAttrs(spec, key)
	if err != nil {
		return &StoreError{Op: "put", Table: table, Key: key, Err: err}
	}
	for name, attr := range keyAttrs {
		av[name] = attr
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	})
	if err != nil {
		return &StoreError{Op: "put", Table: table, Key: key, Err: err}
	}
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, table string, key Key) (Item, bool, error) {
	spec, err := s.spec(table)
	if err != nil {
		return nil, false, err
	}
	keyAttrs, err := s.keyAttrs(spec, key)
	if err != nil {
		return nil, false, &StoreError{Op: "get", Table: table, Key: key, Err: err}
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       keyAttrs,
	})
	if err != nil {
		return nil, false, &StoreError{Op: "get", Table: table, Key: key, Err: err}
	}
	if out.Item == nil {
		return nil, false, nil
	}
	item, err := unmarshalItem(out.Item)
	if err != nil {
		return nil, false, &StoreError{Op: "get", Table: table, Key: key, Err: err}
	}
	return item, true, nil
}

func (s *DynamoStore) Delete(ctx context.Context, table string, key Key) error {
	spec, err := s.spec(table)
	if err != nil {
		return err
	}
	// single-item delete when the key is fully specified
	if spec.SortAttr == "" || key.HasSort {
		keyAttrs, err := s.keyAttrs(spec, key)
		if err != nil {
			return &StoreError{Op: "delete", Table: table, Key: key, Err: err}
		}
		if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(table),
			Key:       keyAttrs,
		}); err != nil {
			return &StoreError{Op: "delete", Table: table, Key: key, Err: err}
		}
		return nil
	}
	// partition-only delete on a composite table: query the partition
	// and batch-delete every item in it.
	keys, err := s.partitionKeys(ctx, table, spec, key.Partition)
	if err != nil {
		return &StoreError{Op: "delete", Table: table, Key: key, Err: err}
	}
	const batchMax = 25
	for start := 0; start < len(keys); start += batchMax {
		end := min(start+batchMax, len(keys))
		requests := make([]types.WriteRequest, 0, end-start)
		for _, k := range keys[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: k},
			})
		}
		if _, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{table: requests},
		}); err != nil {
			return &StoreError{Op: "delete", Table: table, Key: key, Err: err}
		}
	}
	return nil
}

func (s *DynamoStore) Query(ctx context.Context, table string, partition string) ([]Item, error) {
	spec, err := s.spec(table)
	if err != nil {
		return nil, err
	}
	var items []Item
	var start map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(table),
			KeyConditionExpression: aws.String("#pk = :pk"),
			ExpressionAttributeNames: map[string]string{
				"#pk": spec.PartitionAttr,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: partition},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, &StoreError{Op: "query", Table: table, Key: PartitionKey(partition), Err: err}
		}
		for _, av := range out.Items {
			item, err := unmarshalItem(av)
			if err != nil {
				return nil, &StoreError{Op: "query", Table: table, Key: PartitionKey(partition), Err: err}
			}
			items = append(items, item)
		}
		if out.LastEvaluatedKey == nil {
			return items, nil
		}
		start = out.LastEvaluatedKey
	}
}

func (s *DynamoStore) Scan(ctx context.Context, table string) ([]Item, error) {
	if _, err := s.spec(table); err != nil {
		return nil, err
	}
	var items []Item
	var start map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(table),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, &StoreError{Op: "scan", Table: table, Err: err}
		}
		for _, av := range out.Items {
			item, err := unmarshalItem(av)
			if err != nil {
				return nil, &StoreError{Op: "scan", Table: table, Err: err}
			}
			items = append(items, item)
		}
		if out.LastEvaluatedKey == nil {
			return items, nil
		}
		start = out.LastEvaluatedKey
	}
}

func (s *DynamoStore) partitionKeys(ctx context.Context, table string, spec TableSpec, partition string) ([]map[string]types.AttributeValue, error) {
	var keys []map[string]types.AttributeValue
	var start map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(table),
			KeyConditionExpression: aws.String("#pk = :pk"),
			ExpressionAttributeNames: map[string]string{
				"#pk": spec.PartitionAttr,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: partition},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, err
		}
		for _, av := range out.Items {
			key := map[string]types.AttributeValue{
				spec.PartitionAttr: av[spec.PartitionAttr],
			}
			if spec.SortAttr != "" {
				key[spec.SortAttr] = av[spec.SortAttr]
			}
			keys = append(keys, key)
		}
		if out.LastEvaluatedKey == nil {
			return keys, nil
		}
		start = out.LastEvaluatedKey
	}
}

func unmarshalItem(av map[string]types.AttributeValue) (Item, error) {
	var item Item
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, err
	}
	return item, nil
}

var _ Store = (*DynamoStore)(nil)
