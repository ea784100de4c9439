package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	chatcli "github.com/chatline-io/chatline/chat-cli"
	chatddb "github.com/chatline-io/chatline/chat-ddb"
	chatws "github.com/chatline-io/chatline/chat-ws"
	"github.com/chatline-io/chatline/chat-ws/connectiondao"
	"github.com/chatline-io/chatline/chat-ws/local"
	"github.com/chatline-io/chatline/chat-ws/userdao"
	"github.com/urfave/cli/v2"
)

var service = chatcli.NewService("ws-handler")

func main() {
	app := chatcli.App(
		service,
		action,
		append(
			append(chatcli.CommonFlags, chatcli.PortFlag(5000)),
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

	sess := session.Must(session.NewSession(aws.NewConfig()))
	api, err := chatddb.DynamoDBAPI(sess)
	if err != nil {
		return err
	}

	env := chatcli.CommonOpts.Env
	registry := chatws.NewRegistry(connectiondao.Build(api, env), userdao.Build(api, env), logger)

	if chatcli.CommonOpts.Console {
		gateway := local.NewGateway(logger)
		handler := &chatws.Handler{
			Registry:  registry,
			Engine:    chatws.NewEngine(registry, gateway, logger),
			Transport: gateway,
			Logger:    logger,
		}
		gateway.SetEventHandler(handler.HandleEvent)
		return gateway.ListenAndServe(fmt.Sprintf(":%v", chatcli.CommonOpts.Port))
	}

	transport := chatws.NewManagementAPI()
	metrics := chatcli.NewMetrics(service, cloudwatch.New(sess))
	handler := &chatws.Handler{
		Registry:  registry,
		Engine:    chatws.NewEngine(registry, transport, logger),
		Transport: transport,
		Logger:    logger,
		Metrics:   &metrics,
	}
	lambda.Start(handler.HandleEvent)
	return nil
}
