package userdao

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/savaki/ddb"
	"github.com/tj/assert"
)

// requires dynamodb-local, e.g. docker run -p 8000:8000 amazon/dynamodb-local
func withTable(t *testing.T, callback func(ctx context.Context, dao *DAO)) {
	if os.Getenv("DYNAMODB_LOCAL") == "" {
		t.Skip("set DYNAMODB_LOCAL to run dynamodb-local tests")
	}

	var (
		s = session.Must(session.NewSession(aws.NewConfig().
			WithCredentials(credentials.NewStaticCredentials("blah", "blah", "")).
			WithEndpoint("http://localhost:8000").
			WithRegion("us-west-2")))
		api       = dynamodb.New(s)
		client    = ddb.New(api)
		tableName = fmt.Sprintf("table-%v", time.Now().UnixNano())
		table     = client.MustTable(tableName, User{})
		dao       = New(api, tableName)
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := table.CreateTableIfNotExists(ctx)
	assert.Nil(t, err)
	defer table.DeleteTableIfExists(ctx)

	callback(ctx, dao)
}

func TestDAO(t *testing.T) {
	withTable(t, func(ctx context.Context, dao *DAO) {
		// ensure creates a minimal profile
		err := dao.Ensure(ctx, "alice")
		assert.Nil(t, err)

		user, err := dao.Get(ctx, "alice")
		assert.Nil(t, err)
		assert.NotNil(t, user)
		assert.Equal(t, "alice", user.Username)
		assert.NotZero(t, user.FirstSeen)

		// put overwrites with richer attributes
		err = dao.Put(ctx, User{
			Username:   "alice",
			Attributes: map[string]string{"displayName": "Alice"},
			FirstSeen:  user.FirstSeen,
		})
		assert.Nil(t, err)

		// ensure leaves the existing profile untouched
		err = dao.Ensure(ctx, "alice")
		assert.Nil(t, err)

		user, err = dao.Get(ctx, "alice")
		assert.Nil(t, err)
		assert.Equal(t, "Alice", user.Attributes["displayName"])

		// unknown username reads back as nil
		user, err = dao.Get(ctx, "bob")
		assert.Nil(t, err)
		assert.Nil(t, user)
	})
}
