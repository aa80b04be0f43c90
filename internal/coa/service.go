package coa

import "context"

// Service exposes read access to tenant charts of accounts.
type Service struct {
	repo Repository
}

// NewService constructs the chart service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListAccounts returns the tenant's chart ordered by account code.
func (s *Service) ListAccounts(ctx context.Context, tenantID int64) ([]Account, error) {
	return s.repo.ListAccounts(ctx, tenantID)
}
