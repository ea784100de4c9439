package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	chatcli "github.com/chatline-io/chatline/chat-cli"
	chatddb "github.com/chatline-io/chatline/chat-ddb"
	chatrest "github.com/chatline-io/chatline/chat-rest"
	chatsecret "github.com/chatline-io/chatline/chat-secret"
	chatws "github.com/chatline-io/chatline/chat-ws"
	"github.com/chatline-io/chatline/chat-ws/connectiondao"
	"github.com/chatline-io/chatline/chat-ws/userdao"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

var service = chatcli.NewService("users-api")

var opts struct {
	AuthSecret string
}

func main() {
	flags := append(chatcli.CommonFlags, chatcli.PortFlag(5002))
	flags = append(flags,
		chatcli.StringFlag("auth-secret", "Secrets Manager secret holding the API bearer token", &opts.AuthSecret),
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

	sess := session.Must(session.NewSession(aws.NewConfig()))
	api, err := chatddb.DynamoDBAPI(sess)
	if err != nil {
		return err
	}

	users := userdao.Build(api, env)
	registry := chatws.NewRegistry(connectiondao.Build(api, env), users, logger)

	var token struct {
		Token string `json:"token"`
	}
	if opts.AuthSecret != "" {
		if err := chatsecret.LoadSecret(sess, opts.AuthSecret, &token); err != nil {
			return err
		}
	}

	routes := chatrest.Middlewares(service, chi.NewRouter())
	routes.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	routes.Group(func(r chi.Router) {
		r.Use(chatrest.WithBearerAuth(token.Token))
		r.Get("/users", listUsers(registry, logger))
		r.Get("/users/{username}", getUser(registry, users, logger))
		r.Delete("/users/{username}", kickUser(registry, logger))
	})

	return chatrest.Webserver(service, routes)
}

func listUsers(registry *chatws.Registry, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		conns, err := registry.ListActive(req.Context())
		if err != nil {
			logger.Error().Err(err).Msg("unable to list connections")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		entries := make([]chatws.UserEntry, 0, len(conns))
		for _, conn := range conns {
			entries = append(entries, chatws.UserEntry{
				Username:     conn.Username,
				ConnectionID: conn.ConnectionID,
			})
		}
		writeJSON(w, entries)
	}
}

func getUser(registry *chatws.Registry, users *userdao.DAO, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		username := chi.URLParam(req, "username")

		user, err := users.Get(req.Context(), username)
		if err != nil {
			logger.Error().Err(err).Str("username", username).Msg("unable to fetch user")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		conns, err := registry.Lookup(req.Context(), username)
		if err != nil {
			logger.Error().Err(err).Str("username", username).Msg("unable to look up connections")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, struct {
			Username    string            `json:"username"`
			Attributes  map[string]string `json:"attributes,omitempty"`
			Connections []string          `json:"connections"`
		}{
			Username:    user.Username,
			Attributes:  user.Attributes,
			Connections: conns,
		})
	}
}

func kickUser(registry *chatws.Registry, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		username := chi.URLParam(req, "username")

		count, err := registry.DeregisterUser(req.Context(), username)
		if err != nil {
			logger.Error().Err(err).Str("username", username).Msg("unable to deregister user")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, struct {
			Disconnected int `json:"disconnected"`
		}{Disconnected: count})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
