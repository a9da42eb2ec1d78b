// Package server exposes the page components over HTTP and a WebSocket feed.
package server

import (
	"context"
	"net"
	"time"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/authflow"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/config"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/events"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/featureflags"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/forum"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/messaging"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/observability"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/session"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Deps are the components the server exposes. Bus, Flags, Redis and
// Registry are optional.
type Deps struct {
	Session  session.Provider
	Bus      events.Bus
	Poller   *messaging.Poller
	Help     *messaging.HelpCenter
	Forum    *forum.Service
	Voter    *forum.Voter
	Renderer *forum.Renderer
	Auth     *authflow.Flow
	Flags    *featureflags.Manager
	Redis    *redis.Client
	Registry prometheus.Registerer
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	session        session.Provider
	bus            events.Bus
	poller         *messaging.Poller
	help           *messaging.HelpCenter
	forum          *forum.Service
	voter          *forum.Voter
	renderer       *forum.Renderer
	auth           *authflow.Flow
	flags          *featureflags.Manager
	redis          *redis.Client
	promMiddleware *fiberprometheus.FiberPrometheus
	hub            *Hub
	log            *observability.Logger

	threads *lru.Cache[string, *forum.ThreadView]

	app   *fiber.App
	unsub []func()
}

// maxCachedThreads bounds the open threads kept for replies and votes.
const maxCachedThreads = 128

// New creates a server and wires the WebSocket hub to the bus and poller.
// When the session reports changes, cached threads are dropped so votes are
// toggled against the current viewer's state.
func New(cfg *config.Config, deps Deps) *Server {
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &Server{
		config:         cfg,
		session:        deps.Session,
		bus:            deps.Bus,
		poller:         deps.Poller,
		help:           deps.Help,
		forum:          deps.Forum,
		voter:          deps.Voter,
		renderer:       deps.Renderer,
		auth:           deps.Auth,
		flags:          deps.Flags,
		redis:          deps.Redis,
		promMiddleware: fiberprometheus.NewWithRegistry(reg, "syncd", "", "", nil),
		hub:            NewHub(),
		log:            observability.GlobalLogger,
	}
	// lru.New only fails for a non-positive size.
	s.threads, _ = lru.New[string, *forum.ThreadView](maxCachedThreads)
	if n, ok := deps.Session.(session.Notifier); ok {
		n.OnChange(func(*models.User) { s.threads.Purge() })
	}
	if s.bus != nil {
		s.unsub = append(s.unsub, s.bus.Subscribe(events.Wildcard, func(_ context.Context, e events.Event) {
			s.hub.BroadcastJSON("event", e)
		}))
	}
	if s.poller != nil {
		s.poller.OnUpdate(func(snap messaging.Snapshot) {
			s.hub.BroadcastJSON("inbox", snap)
		})
	}
	return s
}

// App builds the fiber application. It is safe to call once per server.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:               "bundlebooth syncd",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// SetupMiddleware configures the middleware chain.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(ContextMiddleware())
	s.promMiddleware.RegisterAt(app, "/metrics")
	app.Use(s.promMiddleware.Middleware)
	app.Use(helmet.New())
	app.Use(StructuredLogger(s.log))

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	app.Use(cors.New(cors.Config{
		AllowOrigins: s.config.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Correlation-ID",
		MaxAge:       86400,
	}))

	if s.config.RateLimitPerMinute > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        s.config.RateLimitPerMinute,
			Expiration: time.Minute,
			Next: func(c *fiber.Ctx) bool {
				return c.Method() == fiber.MethodOptions
			},
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests, please try again later.",
				})
			},
		}))
	}
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	api := app.Group("/api")
	api.Get("/flags", s.getFlags)
	api.Post("/events/:name", s.publishEvent)

	inbox := api.Group("/widget")
	inbox.Get("/", s.getInbox)
	inbox.Post("/toggle", s.toggleWidget)
	inbox.Post("/close", s.closeWidget)
	inbox.Post("/back", s.backWidget)
	inbox.Post("/tab/:tab", s.selectTab)
	inbox.Post("/conversations/:id", s.openConversation)
	inbox.Post("/messages", s.sendMessage)
	inbox.Put("/role/:role", s.setRole)

	help := api.Group("/help")
	help.Get("/faqs", s.listFAQs)
	help.Post("/faqs/:id/feedback", s.faqFeedback)
	help.Post("/tickets", s.submitTicket)

	forumGroup := api.Group("/forum")
	forumGroup.Get("/posts", s.listPosts)
	forumGroup.Post("/posts", s.createPost)
	forumGroup.Get("/posts/:slug", s.getThread)
	forumGroup.Post("/posts/:slug/comments", s.replyToThread)
	forumGroup.Post("/posts/:slug/vote", s.vote)

	auth := api.Group("/auth")
	auth.Get("/state", s.authState)
	auth.Post("/open", s.authOpen)
	auth.Post("/close", s.authClose)
	auth.Post("/show-signup", s.authShowSignup)
	auth.Post("/show-login", s.authShowLogin)
	auth.Post("/login", s.authLogin)
	auth.Post("/signup", s.authSignup)
	auth.Post("/verify-2fa", s.authVerify)
	auth.Post("/resend-2fa", s.authResend)
	auth.Post("/identity", s.authIdentity)
	auth.Post("/account-type", s.authAccountType)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.serveWS))
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports Redis health when event fan-out is configured.
// Without Redis the process runs on its in-process bus and is still ready.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "healthy"
	if redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":     overall,
		"redis":      redisStatus,
		"websockets": s.hub.Len(),
		"unread":     s.poller.UnreadCount(),
	})
}

// Start listens on the configured port until Shutdown.
func (s *Server) Start() error {
	s.log.Info("server starting", "port", s.config.Port)
	return s.App().Listen(":" + s.config.Port)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.App().Listener(ln)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	for _, off := range s.unsub {
		off()
	}
	s.unsub = nil
	s.hub.Shutdown()
	if s.app == nil {
		return nil
	}
	return s.app.ShutdownWithContext(ctx)
}
