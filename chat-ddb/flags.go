package chatddb

import (
	chatcli "github.com/chatline-io/chatline/chat-cli"
	"github.com/urfave/cli/v2"
)

var DDBOpts struct {
	DAXCluster  string
	StreamTable string
}

var DAXClusterFlag = chatcli.StringFlag("dax-cluster", "The DAX cluster to connect to", &DDBOpts.DAXCluster)
var StreamTableFlag = chatcli.StringFlag("stream-table", "The table name to read streams from", &DDBOpts.StreamTable)

var DDBFlags = []cli.Flag{
	DAXClusterFlag,
	StreamTableFlag,
}
