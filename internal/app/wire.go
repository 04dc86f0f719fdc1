package app

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kompite/arena/internal/auth"
	"github.com/kompite/arena/internal/gateway"
	"github.com/kompite/arena/internal/handler"
	"github.com/kompite/arena/internal/jitter"
	"github.com/kompite/arena/internal/ledger"
	"github.com/kompite/arena/internal/match"
	"github.com/kompite/arena/internal/physics"
	"github.com/kompite/arena/internal/repository"
	"github.com/kompite/arena/internal/shield"
)

// Deps holds everything New needs that the app does not construct itself.
type Deps struct {
	Pool   *pgxpool.Pool
	JWTMgr *auth.JWTManager
	Logger *slog.Logger

	// Store overrides the default pgx-backed ledger store. Test hook.
	Store ledger.Store

	BotMatchesEnabled bool
	CORSOrigins       string
}

// App is the assembled arbitration service: the HTTP router plus the
// long-lived components the server binary drives directly.
type App struct {
	Router   chi.Router
	Engine   *ledger.Engine
	Manager  *match.Manager
	Shield   *shield.Shield
	Detector *jitter.Detector
	Hub      *gateway.Hub
}

// New wires the full dependency graph and mounts all routes.
func New(deps Deps) *App {
	logger := deps.Logger

	store := deps.Store
	if store == nil {
		store = repository.NewPgStore(deps.Pool)
	}

	engine := ledger.NewEngine(store, logger)
	guard := shield.New(shield.NewMemoryStore(), logger)
	detector := jitter.NewDetector(logger)
	validator := physics.NewValidator(logger)
	hub := gateway.NewHub(logger)
	manager := match.NewManager(engine, guard, detector, validator, hub, logger)
	ws := gateway.NewServer(hub, detector, manager, deps.JWTMgr, logger)

	accountHandler := handler.NewAccountHandler(engine, deps.JWTMgr)
	matchHandler := handler.NewMatchHandler(manager, deps.BotMatchesEnabled)
	ledgerHandler := handler.NewLedgerHandler(engine)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	origins := deps.CORSOrigins
	if origins == "" {
		origins = "*"
	}
	r.Use(handler.CORSWithOrigins(origins))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(deps.Pool))

	// Registration (no auth)
	r.Post("/accounts/register", accountHandler.Register)

	// Player-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticatePlayer(deps.JWTMgr))

		r.Get("/accounts/me", accountHandler.GetMe)

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/transactions", accountHandler.GetTransactions)
			r.Post("/deposit", accountHandler.Deposit)
			r.Post("/withdraw", accountHandler.Withdraw)
		})

		r.Route("/matches", func(r chi.Router) {
			r.Post("/queue", matchHandler.JoinQueue)
			r.Delete("/queue", matchHandler.LeaveQueue)
			r.Get("/{id}", matchHandler.GetRoom)
			r.Post("/{id}/ready", matchHandler.Ready)
			r.Post("/{id}/confirm", matchHandler.ConfirmEscrow)
			r.Post("/{id}/roll", matchHandler.RollDice)
			r.Post("/{id}/move", matchHandler.MovePiece)
			r.Post("/{id}/shot", matchHandler.SubmitShot)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/verify", ledgerHandler.Verify)
			r.Get("/treasury", ledgerHandler.Treasury)
		})
		r.Get("/settlements/{id}", ledgerHandler.GetSettlement)

		// Realtime gateway. The token also rides in ?token= because
		// browsers cannot set headers on websocket upgrades.
		r.Get("/ws", ws.ServeHTTP)
	})

	return &App{
		Router:   r,
		Engine:   engine,
		Manager:  manager,
		Shield:   guard,
		Detector: detector,
		Hub:      hub,
	}
}
