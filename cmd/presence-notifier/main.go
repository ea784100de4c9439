package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	chatcli "github.com/chatline-io/chatline/chat-cli"
	chatddb "github.com/chatline-io/chatline/chat-ddb"
	chatws "github.com/chatline-io/chatline/chat-ws"
	"github.com/chatline-io/chatline/chat-ws/connectiondao"
	"github.com/chatline-io/chatline/chat-ws/userdao"
	"github.com/urfave/cli/v2"
)

var service = chatcli.NewService("presence-notifier")

func main() {
	app := chatcli.App(
		service,
		action,
		append(chatcli.CommonFlags, chatddb.DDBFlags...)...,
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

	registry := chatws.NewRegistry(connectiondao.Build(api, env), userdao.Build(api, env), logger)
	engine := chatws.NewEngine(registry, chatws.NewManagementAPI(), logger)

	if chatddb.DDBOpts.StreamTable == "" {
		chatddb.DDBOpts.StreamTable = connectiondao.TableName(env)
	}

	notify := func(ctx context.Context, item map[string]*dynamodb.AttributeValue, event string) error {
		var conn connectiondao.Connection
		if err := chatddb.ParseItem(item, &conn); err != nil {
			return err
		}

		frame, err := chatws.PresenceFrame(conn.Username, event, time.Now())
		if err != nil {
			return err
		}

		// The connection that triggered the event already knows; tell everyone else.
		_, err = engine.FanOut(ctx, conn.ConnectionID, frame)
		return err
	}

	onInsert := func(ctx context.Context, newValue map[string]*dynamodb.AttributeValue) error {
		return notify(ctx, newValue, chatws.PresenceJoined)
	}
	onDelete := func(ctx context.Context, oldValue map[string]*dynamodb.AttributeValue) error {
		return notify(ctx, oldValue, chatws.PresenceLeft)
	}

	return chatddb.NewHandler(service, onInsert, nil, onDelete).Start()
}
