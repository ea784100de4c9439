// Package chatgql provides GraphQL server utilities with built-in CORS,
// logging middleware, and common GraphQL scalar types.
//
// This package includes server setup with sensible defaults, a JSON scalar
// for free-form profile attributes, and schema introspection controls.
package chatgql

import (
	chatcli "github.com/chatline-io/chatline/chat-cli"
)

func AllowIntrospection() bool {
	return chatcli.CommonOpts.Env != "prod" || chatcli.CommonOpts.Console
}

type Resolver interface {
	Schema() string
	Config() *BaseConfig
}
