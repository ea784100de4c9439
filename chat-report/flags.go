package chatreport

import (
	chatcli "github.com/chatline-io/chatline/chat-cli"
	"github.com/urfave/cli/v2"
)

var ReportOpts struct {
	Bucket string

	OutFile string
}

var BucketFlag = chatcli.StringFlag("bucket", "The bucket to write the report to", &ReportOpts.Bucket)
var OutFileFlag = chatcli.StringFlag("out-file", "The file to write the report to, when running in dry mode", &ReportOpts.OutFile)

var ReportFlags = []cli.Flag{
	BucketFlag,
	OutFileFlag,
}
