package httptransport

import (
	"expvar"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	apppublic "round-settlement/internal/app/public"
	"round-settlement/internal/ledger"
	"round-settlement/internal/settlement"
)

// Deps wires the router. DevLedger is set only on the memory ledger, where it
// enables the deposit endpoint. MCP and RoundFeed are optional.
type Deps struct {
	Rounds        *settlement.Service
	Public        *apppublic.Service
	Ledger        ledger.Ledger
	PoolAccount   string
	TokenDecimals int32
	DevLedger     *ledger.Memory
	AdminAPIKey   string
	Health        func() error
	MCP           http.Handler
	RoundFeed     http.Handler
}

func NewRouter(d Deps) *chi.Mux {
	roundHandlers := NewRoundHandlers(d.Rounds, d.TokenDecimals)
	publicHandlers := NewPublicHandlers(d.Public, d.Rounds)
	adminHandlers := NewAdminHandlers(d.Rounds, d.Ledger, d.PoolAccount, d.TokenDecimals, d.DevLedger, d.Health)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", adminHandlers.Health())
	if d.MCP != nil {
		r.With(APILogMiddleware()).MethodFunc(http.MethodOptions, "/mcp", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Allow", "POST, GET, DELETE, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
		})
		r.With(APILogMiddleware()).Method(http.MethodPost, "/mcp", d.MCP)
		r.With(APILogMiddleware()).Method(http.MethodGet, "/mcp", d.MCP)
		r.With(APILogMiddleware()).Method(http.MethodDelete, "/mcp", d.MCP)
	}
	if d.RoundFeed != nil {
		r.Handle("/ws/rounds", d.RoundFeed)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(APILogMiddleware())
		r.Post("/rounds", roundHandlers.Create())
		r.Post("/battle/start", roundHandlers.Create())
		r.Get("/rounds", roundHandlers.List())
		r.Get("/rounds/events", roundHandlers.Events())
		r.Get("/rounds/{round_id}", roundHandlers.Get())
		r.Post("/rounds/{round_id}/join", roundHandlers.Join())
		r.Get("/rounds/{round_id}/proof", roundHandlers.Proof())
		r.Get("/rooms", publicHandlers.Rooms())
		r.Get("/users/{account_id}/stats", publicHandlers.UserStats())
		r.Get("/users/{account_id}/battles", publicHandlers.UserRounds())
		r.Get("/hcs/messages", publicHandlers.HCSMessages())

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(d.AdminAPIKey))
			r.Use(BodyCaptureMiddleware(4096))
			r.Post("/rounds/{round_id}/lock", adminHandlers.Lock())
			r.Post("/rounds/{round_id}/reveal", adminHandlers.Reveal())
			r.Post("/rounds/{round_id}/cancel", adminHandlers.Cancel())
			r.Post("/rounds/{round_id}/payout/retry", adminHandlers.RetryPayout())
			r.Get("/pool/balance", adminHandlers.PoolBalance())
			if d.DevLedger != nil {
				r.Post("/dev/deposits", adminHandlers.Deposit())
			}
			r.Get("/debug/vars", expvar.Handler().ServeHTTP)
		})
	})
	return r
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 32)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
