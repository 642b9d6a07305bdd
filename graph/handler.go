package graph

import (
	"net/http"
	"time"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/gorilla/websocket"
)

const keepAlivePingInterval = 10 * time.Second

// NewHandler собирает GraphQL-сервер: запросы по HTTP, подписки по websocket.
func NewHandler(r *Resolver) *handler.Server {
	srv := handler.New(NewExecutableSchema(r))
	srv.AddTransport(&transport.Websocket{
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		KeepAlivePingInterval: keepAlivePingInterval,
	})
	srv.AddTransport(transport.Options{})
	srv.AddTransport(transport.GET{})
	srv.AddTransport(transport.POST{})
	return srv
}
