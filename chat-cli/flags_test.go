package chatcli

import (
	"testing"

	"github.com/tj/assert"
)

func TestEnvVar(t *testing.T) {
	assert.Equal(t, []string{"STREAM_NAME"}, envVar("stream-name"))
	assert.Equal(t, []string{"PORT"}, envVar("port"))
	assert.Equal(t, []string{"AUTH_SECRET"}, envVar("auth-secret"))
}

func TestStringFlag(t *testing.T) {
	var dest string
	flag := StringFlag("stream-name", "usage", &dest, "default")
	assert.Equal(t, "stream-name", flag.Name)
	assert.Equal(t, "default", flag.Value)
	assert.Equal(t, []string{"STREAM_NAME"}, flag.EnvVars)
}
