package chatgql

import (
	"bytes"
	_ "embed"
	"net/http"
	"text/template"

	"github.com/rs/zerolog/log"
)

//go:embed playground.html
var playground string

// Playground serves a GraphiQL page pointed at the given graphql endpoint.
func Playground(endpoint string) http.HandlerFunc {
	templ := template.Must(template.New("playground").Parse(playground))
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		var buffer bytes.Buffer
		if err := templ.Execute(&buffer, endpoint); err != nil {
			log.Warn().Err(err).Msg("failed to render playground")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(buffer.Bytes())
	}
}
