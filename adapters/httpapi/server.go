// Package httpapi exposes a read-only gin HTTP surface over a completed
// reduced basis: a status endpoint and a certified online-query endpoint
// (spec.md §6 external interfaces). It never triggers an offline run --
// that stays a CLI/driver operation, since it can run for hours.
package httpapi

import (
	"net/http"

	"gocrb/app"
	"gocrb/domain/crb"
	"gocrb/domain/parameter"
	"gocrb/internal"

	"github.com/gin-gonic/gin"
)

// Server wraps a gin engine serving queries against one in-memory
// Database.
type Server struct {
	engine   *gin.Engine
	db       *crb.Database
	online   *app.OnlineService
	residual *app.ResidualService
	truth    truthBetas
	space    *parameter.Space
	logger   *internal.Logger
}

// truthBetas is the narrow slice of ports.TruthModel the HTTP layer
// needs: evaluating the affine coefficients at a query parameter. It is
// satisfied by any ports.TruthModel.
type truthBetas interface {
	BetaA(mu parameter.Parameter) [][]float64
	BetaF(mu parameter.Parameter) [][]float64
	BetaL(mu parameter.Parameter) [][]float64
	CoercivityLowerBound(mu parameter.Parameter) (float64, error)
}

// NewServer builds a Server and registers its routes.
func NewServer(db *crb.Database, online *app.OnlineService, residual *app.ResidualService, truth truthBetas, space *parameter.Space, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, db: db, online: online, residual: residual, truth: truth, space: space, logger: logger}
	s.registerRoutes()
	return s
}

// Run starts the HTTP server on addr (e.g. "0.0.0.0:8080").
func (s *Server) Run(addr string) error {
	s.logger.Info("httpapi: listening on %s", addr)
	return s.engine.Run(addr)
}

func (s *Server) registerRoutes() {
	s.engine.GET("/status", s.handleStatus)
	s.engine.POST("/online", s.handleQuery)
}

func (s *Server) handleStatus(c *gin.Context) {
	points := s.db.Convergence.Points()
	var last crb.ConvergencePoint
	if len(points) > 0 {
		last = points[len(points)-1]
	}
	c.JSON(http.StatusOK, gin.H{
		"dimension":        s.db.Dimension(),
		"schema_version":   s.db.Version,
		"convergence_last": last,
		"variance_enabled": s.db.Variance != nil,
	})
}

type queryRequest struct {
	Mu []float64 `json:"mu" binding:"required"`
}

type queryResponse struct {
	Output    float64 `json:"output"`
	Bound     float64 `json:"bound"`
	BoundKind string  `json:"bound_kind"`
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.space.Contains(parameter.New(req.Mu)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mu is outside the parameter domain"})
		return
	}
	mu := parameter.New(req.Mu)

	betaA := s.truth.BetaA(mu)
	betaF := s.truth.BetaF(mu)
	betaL := s.truth.BetaL(mu)

	uN, err := s.online.SolveLinear(betaA, betaF)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	output := s.online.Output(betaL, betaA, uN, nil)

	alphaLB, err := s.truth.CoercivityLowerBound(mu)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	normSq := s.residual.Tables().SteadyNormSquared(betaF, betaA, uN)
	bound, err := s.online.Bound(crb.BoundCertified, normSq, alphaLB, output)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, queryResponse{Output: output, Bound: bound, BoundKind: crb.BoundCertified.String()})
}
