package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	chatcli "github.com/chatline-io/chatline/chat-cli"
	chatcron "github.com/chatline-io/chatline/chat-cron"
	chatddb "github.com/chatline-io/chatline/chat-ddb"
	chatreport "github.com/chatline-io/chatline/chat-report"
	"github.com/chatline-io/chatline/chat-ws/connectiondao"
	"github.com/urfave/cli/v2"
)

var service = chatcli.NewService("stats-cron")

func main() {
	flags := append(chatcli.CommonFlags, chatreport.ReportFlags...)
	flags = append(flags, chatddb.DDBFlags...)

	app := chatcli.App(service, action, flags...)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

type presenceReport struct {
	GeneratedAt string         `json:"generatedAt"`
	Connections int64          `json:"connections"`
	ByUsername  map[string]int `json:"byUsername"`
}

func action(_ *cli.Context) error {
	env := chatcli.CommonOpts.Env

	sess := session.Must(session.NewSession(aws.NewConfig()))
	api, err := chatddb.DynamoDBAPI(sess)
	if err != nil {
		return err
	}

	connections := connectiondao.Build(api, env)
	metrics := chatcli.NewMetrics(service, cloudwatch.New(sess))
	report := chatreport.NewHandler(service, "presence", func(ctx context.Context) (interface{}, error) {
		conns, err := connections.Scan(ctx)
		if err != nil {
			return nil, err
		}

		byUsername := map[string]int{}
		for _, conn := range conns {
			byUsername[conn.Username]++
		}
		return presenceReport{
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
			Connections: int64(len(conns)),
			ByUsername:  byUsername,
		}, nil
	})

	return chatcron.NewHandler(service, func(ctx context.Context) error {
		count, err := connections.Count(ctx)
		if err != nil {
			return err
		}
		metrics.Gauge(ctx, chatcli.ActiveConnectionsMetric, float64(count))

		return report.Generate(ctx)
	}).Start()
}
