package chatannounce

import (
	chatcli "github.com/chatline-io/chatline/chat-cli"
	"github.com/urfave/cli/v2"
)

var AnnounceOpts struct {
	StreamName string
	Replay     bool
}

var StreamNameFlag = chatcli.StringFlag("stream-name", "The stream name to read announcements from", &AnnounceOpts.StreamName)
var ReplayFlag = chatcli.BoolFlag("replay", "Whether to replay from the beginning, or start from the next message", &AnnounceOpts.Replay)

var AnnounceFlags = []cli.Flag{
	StreamNameFlag,
	ReplayFlag,
}
