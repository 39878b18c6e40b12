// Package records exposes read access to ingested trial data and the
// ingestion trigger endpoint.
package records

import (
	"trialops_backend/internal/events"
	apphttp "trialops_backend/internal/http"
	"trialops_backend/internal/records/handler"
	"trialops_backend/internal/records/repository"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module bundles the read-only record repository with the ingestion handler.
type Module struct {
	repo    *repository.Repository
	handler *handler.Handler
}

// New constructs the records module.
func New(pool *pgxpool.Pool, bus events.Bus) *Module {
	return &Module{
		repo:    repository.New(pool),
		handler: handler.New(bus),
	}
}

// Name implements http.Module.
func (m *Module) Name() string { return "records" }

// RegisterRoutes implements http.Module.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1)
}

// Repository exposes the record reader for the detection module.
func (m *Module) Repository() *repository.Repository { return m.repo }
