package main

import (
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	chatcli "github.com/chatline-io/chatline/chat-cli"
	chatddb "github.com/chatline-io/chatline/chat-ddb"
	chatgql "github.com/chatline-io/chatline/chat-gql"
	"github.com/chatline-io/chatline/chat-gql/presence"
	chatws "github.com/chatline-io/chatline/chat-ws"
	"github.com/chatline-io/chatline/chat-ws/connectiondao"
	"github.com/chatline-io/chatline/chat-ws/userdao"
	"github.com/urfave/cli/v2"
)

var service = chatcli.NewSubpathService("presence")

func main() {
	app := chatcli.App(
		service,
		action,
		append(
			append(chatcli.CommonFlags, chatcli.PortFlag(5001)),
			chatddb.DDBFlags...,
		)...,
	)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	logger := chatcli.Logger(service)
	env := chatcli.CommonOpts.Env

	sess := session.Must(session.NewSession(aws.NewConfig()))
	api, err := chatddb.DynamoDBAPI(sess)
	if err != nil {
		return err
	}

	users := userdao.Build(api, env)
	registry := chatws.NewRegistry(connectiondao.Build(api, env), users, logger)

	config := chatgql.NewConfig(service)
	return chatgql.Webserver(presence.NewResolver(registry, users, &config))
}
