package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fedhub/internal/config"
	"fedhub/internal/domain"
	"fedhub/internal/infra/db"
	"fedhub/internal/infra/discovery"
	"fedhub/internal/infra/idpcore"
	"fedhub/internal/infra/policyrego"
	"fedhub/internal/infra/ratelimit"
	"fedhub/internal/infra/registry"
	"fedhub/internal/infra/statement"
	"fedhub/internal/infra/verifier"
	"fedhub/internal/usecase"

	"github.com/gin-gonic/gin"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine

	registry   domain.AnchorRegistry
	resolveUC  *usecase.ResolveEntity
	registerUC *usecase.RegisterClient
	signer     *entitySigner

	adminAPIKey string

	rateLimiter       domain.RateLimiter
	rateLimitRequests int
	rateLimitWindow   time.Duration
}

func NewServer(cfg config.Config, store *db.Store) (*Server, error) {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r, adminAPIKey: cfg.AdminAPIKey}
	if err := s.initDeps(); err != nil {
		return nil, err
	}
	s.routes()
	return s, nil
}

// ServerDeps lets tests inject every collaborator directly.
type ServerDeps struct {
	Registry    domain.AnchorRegistry
	Resolve     *usecase.ResolveEntity
	Register    *usecase.RegisterClient
	Signer      *entitySigner
	AdminAPIKey string
	RateLimiter domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:         cfg,
		r:           r,
		registry:    deps.Registry,
		resolveUC:   deps.Resolve,
		registerUC:  deps.Register,
		signer:      deps.Signer,
		adminAPIKey: deps.AdminAPIKey,
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initDeps() error {
	production := s.cfg.Production()

	codec := &statement.Codec{AllowJSON: s.cfg.JSONStatements && !production}

	var statements domain.StatementVerifier
	var tokens domain.TokenVerifier
	if s.cfg.VerifyMode == "insecure" && !production {
		insecure := verifier.NewInsecure()
		statements, tokens = insecure, insecure
	} else {
		strict := verifier.New()
		statements, tokens = strict, strict
	}

	discoveryOpts := []discovery.Option{discovery.WithTimeout(s.cfg.DiscoveryTimeoutDuration())}
	if ttl := s.cfg.DiscoveryCacheTTLDuration(); ttl > 0 {
		discoveryOpts = append(discoveryOpts, discovery.WithCache(ttl))
	}
	discoveryClient := discovery.NewClient(codec, discoveryOpts...)

	registryOpts := []registry.Option{}
	if !production {
		registryOpts = append(registryOpts, registry.WithInsecureIDs())
	}
	if s.store.Available() {
		registryOpts = append(registryOpts, registry.WithStore(db.NewTrustAnchorRepository(s.store.DB)))
	}
	anchors := registry.New(registryOpts...)
	if err := anchors.Load(context.Background()); err != nil {
		return err
	}
	s.registry = anchors

	builder := &usecase.BuildTrustChains{
		Discovery:   discoveryClient,
		Registry:    anchors,
		MaxDepth:    s.cfg.ChainMaxDepth,
		Concurrency: s.cfg.ChainConcurrency,
	}
	validator := &usecase.ValidateTrustChain{
		Registry: anchors,
		Verifier: statements,
	}
	s.resolveUC = &usecase.ResolveEntity{Builder: builder, Validator: validator}

	register := &usecase.RegisterClient{
		Parser:   codec,
		Resolver: s.resolveUC,
		Verifier: tokens,
	}
	if s.cfg.RegistrationPolicyBundle != "" {
		engine, err := policyrego.NewEngineFromBundlePath(context.Background(), s.cfg.RegistrationPolicyBundle)
		if err != nil {
			return fmt.Errorf("load registration policy: %w", err)
		}
		register.Policy = engine
	}
	if s.cfg.IdPCoreURL != "" {
		register.IdP = idpcore.New(s.cfg.IdPCoreURL, idpcore.WithMaxAttempts(s.cfg.IdPCoreMaxAttempts))
	}
	if s.store.Available() {
		register.Clients = db.NewClientRepository(s.store.DB)
	}
	s.registerUC = register

	signer, err := newEntitySignerFromConfig(s.cfg, codec)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}
	s.signer = signer

	s.initRateLimit(nil)
	return nil
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	if s.cfg.RateLimitWindowSeconds > 0 {
		s.rateLimitWindow = time.Duration(s.cfg.RateLimitWindowSeconds) * time.Second
	}
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		mode := "no-db"
		if s.store.Available() {
			mode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": mode})
	})

	if s.signer != nil {
		s.r.GET(discovery.WellKnownPath, s.handleWellKnown)
	}

	v1 := s.r.Group("/v1")
	{
		v1.POST("/trust-anchors", s.handleAddAnchor)
		v1.GET("/trust-anchors", s.handleListAnchors)
		v1.DELETE("/trust-anchors", s.handleRemoveAnchor)

		v1.GET("/resolve", s.handleResolve)
		v1.POST("/register", s.handleRegister)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}

// Handler exposes the router for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.r
}
