package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/collabspace/collab-api/internal/db/models"
)

// AuditPage is one page of an organization's audit log
type AuditPage struct {
	Entries []*models.AuditLog `json:"entries"`
	Total   int                `json:"total"`
	Page    int                `json:"page"`
	Limit   int                `json:"limit"`
	Pages   int                `json:"pages"`
}

// AuditShipper forwards stored entries to an external destination
type AuditShipper interface {
	Ship(ctx context.Context, entry *models.AuditLog) error
}

// AuditService records and lists organization audit entries
type AuditService struct {
	stores  StoreProvider
	shipper AuditShipper
}

// NewAuditService creates an AuditService
func NewAuditService(stores StoreProvider) *AuditService {
	return &AuditService{stores: stores}
}

// WithShipper forwards every entry written by Record to shipper as well
func (s *AuditService) WithShipper(shipper AuditShipper) *AuditService {
	s.shipper = shipper
	return s
}

// Record appends an entry. Failures are logged and swallowed; auditing never fails the
// request that triggered it. Entries that could not be stored are not shipped.
func (s *AuditService) Record(ctx context.Context, entry *models.AuditLog) {
	if err := s.stores.AuditLogs().CreateAuditLog(ctx, entry); err != nil {
		slog.Error("failed to write audit log", "action", entry.Action, "error", err)
		return
	}
	if s.shipper == nil {
		return
	}
	if err := s.shipper.Ship(ctx, entry); err != nil {
		slog.Warn("failed to ship audit log", "action", entry.Action, "error", err)
	}
}

// List returns one page of the organization's audit log, newest first
func (s *AuditService) List(ctx context.Context, orgID string, page, limit int) (*AuditPage, error) {
	if err := requireOrganization(ctx, s.stores, orgID); err != nil {
		return nil, err
	}
	if page < 1 {
		return nil, newValidationError("page", "page must be at least 1")
	}
	if limit < 1 || limit > MaxPageLimit {
		return nil, newValidationError("limit", "limit must be between 1 and %d", MaxPageLimit)
	}

	entries, err := s.stores.AuditLogs().ListAuditLogs(ctx, orgID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	total, err := s.stores.AuditLogs().CountAuditLogs(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}
	if entries == nil {
		entries = []*models.AuditLog{}
	}
	return &AuditPage{Entries: entries, Total: total, Page: page, Limit: limit, Pages: pageCount(total, limit)}, nil
}
