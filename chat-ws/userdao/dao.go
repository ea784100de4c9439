package userdao

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// DAO provides access to the users table.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new users DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, User{}),
		api:       api,
		tableName: tableName,
	}
}

// Put stores a user profile, overwriting any existing one.
func (d *DAO) Put(ctx context.Context, user User) error {
	return d.table.Put(user).RunWithContext(ctx)
}

// Get retrieves a user profile by username. Returns nil if not found.
func (d *DAO) Get(ctx context.Context, username string) (*User, error) {
	var user User
	if err := d.table.Get(username).ScanWithContext(ctx, &user); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user %v: %w", username, err)
	}
	return &user, nil
}

// Ensure creates a minimal profile for the username if none exists yet. An
// existing profile is left untouched.
func (d *DAO) Ensure(ctx context.Context, username string) error {
	item, err := dynamodbattribute.MarshalMap(User{
		Username:  username,
		FirstSeen: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal user %v: %w", username, err)
	}

	_, err = d.api.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(username)"),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return nil
		}
		return fmt.Errorf("failed to ensure user %v: %w", username, err)
	}
	return nil
}
