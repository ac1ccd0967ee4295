package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/coolive/internal/auth"
	"github.com/dukerupert/coolive/internal/avatar"
	"github.com/dukerupert/coolive/internal/chore"
	"github.com/dukerupert/coolive/internal/config"
	"github.com/dukerupert/coolive/internal/email"
	"github.com/dukerupert/coolive/internal/handler"
	"github.com/dukerupert/coolive/internal/middleware"
	"github.com/dukerupert/coolive/internal/push"
	"github.com/dukerupert/coolive/internal/store"
	ws "github.com/dukerupert/coolive/internal/websocket"
)

type Server struct {
	db           *sql.DB
	cfg          *config.Config
	hub          *ws.Hub
	resolver     *chore.Resolver
	authH        *handler.AuthHandler
	profileH     *handler.ProfileHandler
	groupH       *handler.GroupHandler
	taskH        *handler.TaskHandler
	rankingH     *handler.RankingHandler
	pushH        *handler.PushHandler
	sessionStore *store.SessionStore
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger, opts ...chore.Option) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	groupStore := store.NewGroupStore(db)
	taskStore := store.NewTaskStore(db)
	sessionStore := store.NewSessionStore(db)
	pushStore := store.NewPushStore(db)

	svc := chore.NewService(taskStore, groupStore, sessionStore, logger.With("component", "chore"), opts...)

	// Push is optional: without VAPID keys no notifier or routes are wired.
	var notifier *push.Notifier
	var pushH *handler.PushHandler
	if cfg.Push.Enabled() {
		pushSvc := push.NewService(cfg.Push)
		notifier = push.NewNotifier(pushSvc, pushStore, logger.With("component", "push"))
		pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler"))
	}

	var groupH *handler.GroupHandler
	if cfg.Email.Configured() {
		mailer := email.NewClient(cfg.Email.PostmarkToken, cfg.Email.From)
		groupH = handler.NewGroupHandler(svc, hub, mailer, logger.With("component", "group"))
	} else {
		groupH = handler.NewGroupHandler(svc, hub, nil, logger.With("component", "group"))
	}

	return &Server{
		db:           db,
		cfg:          cfg,
		hub:          hub,
		resolver:     chore.NewResolver(groupStore, sessionStore, logger.With("component", "resolver")),
		authH:        handler.NewAuthHandler(userStore, sessionStore, logger.With("component", "auth")),
		profileH:     handler.NewProfileHandler(userStore, avatar.NewStore(cfg.Avatar), logger.With("component", "profile")),
		groupH:       groupH,
		taskH:        handler.NewTaskHandler(svc, hub, notifier, logger.With("component", "task")),
		rankingH:     handler.NewRankingHandler(svc, hub, logger.With("component", "ranking")),
		pushH:        pushH,
		sessionStore: sessionStore,
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the live update hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	byIP := func(r *http.Request) string { return "auth:" + middleware.ClientIP(r) }
	rl := middleware.Limit(s.rateLimiter, byIP, s.cfg.AuthRateLimit, s.cfg.AuthRateWindow)
	outerMux.Handle("POST /api/auth/signup", rl(http.HandlerFunc(s.authH.Signup)))
	outerMux.Handle("POST /api/auth/signin", rl(http.HandlerFunc(s.authH.Signin)))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Routes that need a session but not a group
	accountMux := http.NewServeMux()
	s.registerAccountRoutes(accountMux)

	// Routes scoped to the caller's group
	groupMux := http.NewServeMux()
	s.registerGroupRoutes(groupMux)

	requireAuth := middleware.RequireAuth(s.sessionStore, s.logger.With("component", "auth"))
	requireGroup := middleware.RequireGroup(s.resolver, s.logger.With("component", "auth"))
	accountMux.Handle("/", requireGroup(groupMux))
	outerMux.Handle("/", requireAuth(accountMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

// inviteLimit caps invite emails per user.
func (s *Server) inviteLimit(next http.Handler) http.Handler {
	byUser := func(r *http.Request) string {
		return "invite:" + strconv.FormatInt(auth.UserID(r.Context()), 10)
	}
	return middleware.Limit(s.rateLimiter, byUser, s.cfg.InviteRateLimit, time.Hour)(next)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	code, status := http.StatusOK, "ok"
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		code, status = http.StatusServiceUnavailable, "unavailable"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) registerAccountRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/signout", s.authH.Signout)

	mux.HandleFunc("GET /api/profile", s.profileH.Get)
	mux.HandleFunc("PUT /api/profile", s.profileH.Update)
	mux.HandleFunc("POST /api/profile/avatar", s.profileH.UploadAvatar)
	mux.HandleFunc("POST /api/profile/avatar/random", s.profileH.RandomAvatar)

	mux.HandleFunc("POST /api/groups", s.groupH.Create)
	mux.HandleFunc("POST /api/groups/join", s.groupH.Join)

	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	}
}

func (s *Server) registerGroupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/group", s.groupH.Current)
	mux.HandleFunc("POST /api/group/leave", s.groupH.Leave)
	mux.HandleFunc("GET /api/group/members", s.groupH.Members)
	mux.HandleFunc("GET /api/group/invite", s.groupH.Invite)
	mux.Handle("POST /api/group/invite/email", s.inviteLimit(http.HandlerFunc(s.groupH.EmailInvite)))

	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("GET /api/tasks/today", s.taskH.Today)
	mux.HandleFunc("GET /api/tasks/week", s.taskH.Week)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.HandleFunc("PUT /api/tasks/{id}", s.taskH.Update)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.taskH.Delete)
	mux.HandleFunc("POST /api/tasks/{id}/toggle", s.taskH.Toggle)

	mux.HandleFunc("GET /api/ranking", s.rankingH.List)
	mux.HandleFunc("POST /api/ranking/bonus", s.rankingH.Bonus)
	mux.HandleFunc("GET /api/ranking/awards", s.rankingH.Awards)

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.cfg.AllowedOrigins, s.logger.With("component", "websocket")))
}
