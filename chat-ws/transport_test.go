package chatws

import (
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/tj/assert"
)

func TestIsGoneException(t *testing.T) {
	t.Run("typed gone exception", func(t *testing.T) {
		err := awserr.New(apigatewaymanagementapi.ErrCodeGoneException, "connection gone", nil)
		assert.True(t, isGoneException(err))
	})

	t.Run("gone exception by name", func(t *testing.T) {
		assert.True(t, isGoneException(fmt.Errorf("GoneException: connection no longer exists")))
	})

	t.Run("other aws errors are not gone", func(t *testing.T) {
		err := awserr.New(apigatewaymanagementapi.ErrCodeLimitExceededException, "throttled", nil)
		assert.False(t, isGoneException(err))
	})

	t.Run("a 410 in the message is not gone", func(t *testing.T) {
		// request ids and addresses can contain the digits 410
		assert.False(t, isGoneException(fmt.Errorf("RequestError: send failed, request id 8f410c2d")))
	})
}
