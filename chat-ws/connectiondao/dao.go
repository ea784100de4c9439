package connectiondao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// ErrConnectionExists indicates a connection id that is already registered.
// Connection ids are unique per the gateway contract, so a collision is a
// contract violation rather than a retryable condition.
var ErrConnectionExists = errors.New("connection already exists")

// DAO provides access to the WebSocket connections table.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new connections DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Connection{}),
		api:       api,
		tableName: tableName,
	}
}

// PutNew stores a connection record, failing with ErrConnectionExists if the
// connection id is already present. The existing record is never overwritten.
func (d *DAO) PutNew(ctx context.Context, conn Connection) error {
	item, err := dynamodbattribute.MarshalMap(conn)
	if err != nil {
		return fmt.Errorf("failed to marshal connection %v: %w", conn.ConnectionID, err)
	}

	_, err = d.api.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(connectionId)"),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return fmt.Errorf("connection %v: %w", conn.ConnectionID, ErrConnectionExists)
		}
		return fmt.Errorf("failed to put connection %v: %w", conn.ConnectionID, err)
	}
	return nil
}

// Get retrieves a connection record by ID. Returns nil if not found.
func (d *DAO) Get(ctx context.Context, connectionID string) (*Connection, error) {
	var conn Connection
	if err := d.table.Get(connectionID).ScanWithContext(ctx, &conn); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get connection %v: %w", connectionID, err)
	}
	return &conn, nil
}

// Delete removes a connection record by ID. It reports whether a record was
// actually removed; deleting an absent record is a no-op success, so the
// operation is safe under concurrent prune attempts.
func (d *DAO) Delete(ctx context.Context, connectionID string) (bool, error) {
	key, err := dynamodbattribute.MarshalMap(map[string]string{"connectionId": connectionID})
	if err != nil {
		return false, fmt.Errorf("failed to marshal key for connection %v: %w", connectionID, err)
	}

	output, err := d.api.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(d.tableName),
		Key:          key,
		ReturnValues: aws.String(dynamodb.ReturnValueAllOld),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete connection %v: %w", connectionID, err)
	}
	return len(output.Attributes) > 0, nil
}

// Scan returns a snapshot of every connection record. The snapshot is read
// page by page and makes no ordering or freshness guarantee; connections may
// come and go while the scan is in flight.
func (d *DAO) Scan(ctx context.Context) ([]Connection, error) {
	var (
		conns   []Connection
		pageErr error
	)
	err := d.api.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.tableName),
	}, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		var batch []Connection
		if pageErr = dynamodbattribute.UnmarshalListOfMaps(page.Items, &batch); pageErr != nil {
			return false
		}
		conns = append(conns, batch...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan connections: %w", err)
	}
	if pageErr != nil {
		return nil, fmt.Errorf("failed to unmarshal connections: %w", pageErr)
	}
	return conns, nil
}

// QueryByUsername returns all connections for a given username using the
// UsernameIndex GSI. A username may hold any number of simultaneous
// connections (multi-device).
func (d *DAO) QueryByUsername(ctx context.Context, username string) ([]Connection, error) {
	var conns []Connection
	err := d.table.Query("#Username = ?", username).
		IndexName("UsernameIndex").
		FindAllWithContext(ctx, &conns)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections by username %v: %w", username, err)
	}
	return conns, nil
}

// DeleteByUsername removes every connection record for a given username and
// returns how many records were deleted.
func (d *DAO) DeleteByUsername(ctx context.Context, username string) (int, error) {
	conns, err := d.QueryByUsername(ctx, username)
	if err != nil {
		return 0, err
	}

	// Batch delete in chunks of 25 (DynamoDB limit)
	const batchSize = 25
	for i := 0; i < len(conns); i += batchSize {
		end := i + batchSize
		if end > len(conns) {
			end = len(conns)
		}
		chunk := conns[i:end]

		writeRequests := make([]*dynamodb.WriteRequest, len(chunk))
		for j, conn := range chunk {
			key, err := dynamodbattribute.MarshalMap(map[string]string{"connectionId": conn.ConnectionID})
			if err != nil {
				return 0, fmt.Errorf("failed to marshal key for connection %v: %w", conn.ConnectionID, err)
			}
			writeRequests[j] = &dynamodb.WriteRequest{
				DeleteRequest: &dynamodb.DeleteRequest{Key: key},
			}
		}

		unprocessed := map[string][]*dynamodb.WriteRequest{
			d.tableName: writeRequests,
		}

		const maxRetries = 5
		for attempt := 0; attempt < maxRetries; attempt++ {
			output, err := d.api.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: unprocessed,
			})
			if err != nil {
				return 0, fmt.Errorf("failed to batch delete connections for username %v: %w", username, err)
			}
			if len(output.UnprocessedItems) == 0 {
				break
			}
			unprocessed = output.UnprocessedItems
			if attempt < maxRetries-1 {
				backoff := time.Duration(1<<attempt) * 100 * time.Millisecond
				timer := time.NewTimer(backoff)
				select {
				case <-ctx.Done():
					timer.Stop()
					return 0, fmt.Errorf("context cancelled during retry for username %v: %w", username, ctx.Err())
				case <-timer.C:
				}
			} else {
				return 0, fmt.Errorf("failed to delete all connections for username %v: %d items unprocessed after %d retries", username, len(unprocessed[d.tableName]), maxRetries)
			}
		}
	}

	return len(conns), nil
}

// Count returns the number of active connections.
func (d *DAO) Count(ctx context.Context) (int64, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(d.tableName),
		Select:    aws.String(dynamodb.SelectCount),
	}

	var total int64
	err := d.api.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		total += aws.Int64Value(page.Count)
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count connections: %w", err)
	}
	return total, nil
}
