package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"
)

// DynamoService is a thin wrapper over the DynamoDB client covering the
// operations the stores need: keyed get/put/delete, full-table scans, and the
// conditional writes that give us per-item atomicity.
type DynamoService struct {
	Client *dynamodb.Client
}

// InitializeDynamoDBClient initializes the DynamoDB client for a region
func InitializeDynamoDBClient(region string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// isConditionalCheckFailed reports whether err is DynamoDB rejecting a
// conditional write, which our stores translate into domain signals
// (ErrLockContention, ErrRoomTaken) rather than failures.
func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// GetItem retrieves an item by key; a missing item returns (nil, nil).
func (ds *DynamoService) GetItem(ctx context.Context, tableName string, key map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	output, err := ds.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &tableName,
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get from table '%s': %v", ErrStoreUnavailable, tableName, err)
	}
	return output.Item, nil
}

// PutItem marshals and upserts an item.
func (ds *DynamoService) PutItem(ctx context.Context, tableName string, item interface{}) error {
	marshaled, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item for table '%s': %w", tableName, err)
	}
	_, err = ds.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &tableName,
		Item:      marshaled,
	})
	if err != nil {
		return fmt.Errorf("%w: put into table '%s': %v", ErrStoreUnavailable, tableName, err)
	}
	return nil
}

// PutItemConditional marshals and puts an item guarded by a condition
// expression. A failed condition is reported as ErrNotFound-flavored
// conditionFailedErr so callers can map it to their own signal.
func (ds *DynamoService) PutItemConditional(
	ctx context.Context,
	tableName string,
	item interface{},
	conditionExpression string,
	expressionAttributeNames map[string]string,
	expressionAttributeValues map[string]types.AttributeValue,
	conditionFailedErr error,
) error {
	marshaled, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item for table '%s': %w", tableName, err)
	}
	input := &dynamodb.PutItemInput{
		TableName:           &tableName,
		Item:                marshaled,
		ConditionExpression: aws.String(conditionExpression),
	}
	if len(expressionAttributeNames) > 0 {
		input.ExpressionAttributeNames = expressionAttributeNames
	}
	if len(expressionAttributeValues) > 0 {
		input.ExpressionAttributeValues = expressionAttributeValues
	}
	_, err = ds.Client.PutItem(ctx, input)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return conditionFailedErr
		}
		return fmt.Errorf("%w: conditional put into table '%s': %v", ErrStoreUnavailable, tableName, err)
	}
	return nil
}

// DeleteItem removes an item by key. The bool reports whether an item was
// actually there, via ALL_OLD return values.
func (ds *DynamoService) DeleteItem(ctx context.Context, tableName string, key map[string]types.AttributeValue) (bool, error) {
	output, err := ds.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    &tableName,
		Key:          key,
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, fmt.Errorf("%w: delete from table '%s': %v", ErrStoreUnavailable, tableName, err)
	}
	return len(output.Attributes) > 0, nil
}

// DeleteItemConditional removes an item only while the condition holds
// (e.g. the lock owner token still matches). A failed condition is not an
// error: the item was already taken over or removed.
func (ds *DynamoService) DeleteItemConditional(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	conditionExpression string,
	expressionAttributeNames map[string]string,
	expressionAttributeValues map[string]types.AttributeValue,
) error {
	input := &dynamodb.DeleteItemInput{
		TableName:                 &tableName,
		Key:                       key,
		ConditionExpression:       aws.String(conditionExpression),
		ExpressionAttributeValues: expressionAttributeValues,
	}
	if len(expressionAttributeNames) > 0 {
		input.ExpressionAttributeNames = expressionAttributeNames
	}
	_, err := ds.Client.DeleteItem(ctx, input)
	if err != nil {
		if isConditionalCheckFailed(err) {
			log.WithField("table", tableName).Debug("conditional delete lost the race, ignoring")
			return nil
		}
		return fmt.Errorf("%w: conditional delete from table '%s': %v", ErrStoreUnavailable, tableName, err)
	}
	return nil
}

// ScanItems returns every raw item of a table. Tables here hold tens of
// records, so full scans are the intended access pattern.
func (ds *DynamoService) ScanItems(ctx context.Context, tableName string) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for {
		output, err := ds.Client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         &tableName,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: scan table '%s': %v", ErrStoreUnavailable, tableName, err)
		}
		items = append(items, output.Items...)
		if output.LastEvaluatedKey == nil {
			break
		}
		startKey = output.LastEvaluatedKey
	}
	return items, nil
}

// StringKey builds a single-attribute string key map.
func StringKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}
