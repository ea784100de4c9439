package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	chatannounce "github.com/chatline-io/chatline/chat-announce"
	chatcli "github.com/chatline-io/chatline/chat-cli"
	chatddb "github.com/chatline-io/chatline/chat-ddb"
	chatws "github.com/chatline-io/chatline/chat-ws"
	"github.com/chatline-io/chatline/chat-ws/connectiondao"
	"github.com/chatline-io/chatline/chat-ws/userdao"
	"github.com/urfave/cli/v2"
)

var service = chatcli.NewService("announcer")

var opts struct {
	Publish string
	Channel string
}

func main() {
	flags := append(
		append(chatcli.CommonFlags, chatannounce.AnnounceFlags...),
		chatddb.DDBFlags...,
	)
	flags = append(flags,
		chatcli.StringFlag("publish", "Publish a one-shot announcement and exit", &opts.Publish),
		chatcli.StringFlag("channel", "Channel for one-shot announcements", &opts.Channel, "system"),
	)

	app := chatcli.App(service, action, flags...)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	logger := chatcli.Logger(service)
	env := chatcli.CommonOpts.Env

	if opts.Publish != "" {
		publisher := chatannounce.Build(env)
		if err := publisher.Send(context.Background(), opts.Channel, opts.Publish); err != nil {
			return err
		}
		logger.Info().Str("channel", opts.Channel).Msg("announcement published")
		return nil
	}

	sess := session.Must(session.NewSession(aws.NewConfig()))
	api, err := chatddb.DynamoDBAPI(sess)
	if err != nil {
		return err
	}

	registry := chatws.NewRegistry(connectiondao.Build(api, env), userdao.Build(api, env), logger)
	engine := chatws.NewEngine(registry, chatws.NewManagementAPI(), logger)

	return chatannounce.NewHandler(service, engine).Start()
}
