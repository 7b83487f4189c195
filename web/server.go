package web

import (
	"embed"
	"html/template"
	"net/http"
	"net/http/pprof"

	"github.com/gin-gonic/gin"

	"vermithor/chat"
)

//go:embed templates/*.html
var templateFS embed.FS

// Options carries the presentation and per-session limits of the front-end
type Options struct {
	Title      string
	Icon       string
	CookieName string
	// RateLimit is the sustained number of chat requests per second a session may make; 0 disables limiting
	RateLimit float64
	RateBurst int
	// Profiling mounts the net/http/pprof handlers under /debug/pprof
	Profiling bool
}

type Server struct {
	engine   *gin.Engine
	chat     *chat.Service
	opts     Options
	limiters *limiterRegistry
}

func New(chatService *chat.Service, opts Options) (*Server, error) {
	if opts.CookieName == "" {
		opts.CookieName = "vermithor_session"
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		engine:   gin.New(),
		chat:     chatService,
		opts:     opts,
		limiters: newLimiterRegistry(opts.RateLimit, opts.RateBurst),
	}
	s.engine.SetHTMLTemplate(tmpl)
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.engine.Use(gin.Recovery(), requestLogger())

	s.engine.GET("/healthz", s.handleHealth)

	withSession := s.engine.Group("/", s.sessionMiddleware())
	withSession.GET("/", s.handleIndex)

	api := withSession.Group("/api")
	api.GET("/models", s.handleModels)
	api.GET("/messages", s.handleMessages)
	api.POST("/chat", s.rateLimitMiddleware(), s.handleChat)
	api.POST("/reset", s.handleReset)

	if s.opts.Profiling {
		debug := s.engine.Group("/debug/pprof")
		debug.GET("/", gin.WrapF(pprof.Index))
		debug.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		debug.GET("/profile", gin.WrapF(pprof.Profile))
		debug.GET("/symbol", gin.WrapF(pprof.Symbol))
		debug.GET("/trace", gin.WrapF(pprof.Trace))
		debug.GET("/:name", gin.WrapH(http.HandlerFunc(pprof.Index)))
	}
}

// Handler exposes the router for http.Server and httptest
func (s *Server) Handler() http.Handler {
	return s.engine
}
