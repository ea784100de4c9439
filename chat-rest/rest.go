// Package chatrest provides REST API utilities with CORS support and common middleware.
package chatrest

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	chatcli "github.com/chatline-io/chatline/chat-cli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/savaki/apigateway"
)

func Middlewares(service chatcli.Service, routes chi.Router) chi.Router {
	routes.Use(
		withCORS(),
		withLogger(chatcli.Logger(service)),
		middleware.Recoverer,
	)
	return routes
}

func Webserver(service chatcli.Service, routes chi.Router) error {
	logger := chatcli.Logger(service)

	if chatcli.CommonOpts.Console {
		logger.Info().Int("port", chatcli.CommonOpts.Port).Msg("starting http server")
		addr := fmt.Sprintf(":%v", chatcli.CommonOpts.Port)
		return http.ListenAndServe(addr, routes)
	}

	lambda.Start(apigateway.Wrap(routes, chatcli.CommonOpts.Env))
	return nil
}

func CacheControl(handler http.HandlerFunc, maxAge int) http.HandlerFunc {
	value := fmt.Sprintf("max-age=%v", maxAge)
	return func(w http.ResponseWriter, req *http.Request) {
		req.Header.Set("Cache-Control", value)
		handler.ServeHTTP(w, req)
	}
}

// WithBearerAuth rejects requests that don't carry the expected bearer
// token. An empty token disables the check.
func WithBearerAuth(token string) func(next http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if token != "" {
				got := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
				if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			}
			handler.ServeHTTP(w, req)
		})
	}
}

func withCORS() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
	})
}

func withLogger(logger zerolog.Logger) func(handler http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := logger.WithContext(req.Context())
			req = req.WithContext(ctx)
			handler.ServeHTTP(w, req)
		})
	}
}
