// stores.go binds the repositories to one database handle and runs units of work in a
// transaction, satisfying services.StoreProvider and services.TxRunner.
package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/collabspace/collab-api/internal/services"
)

// Stores exposes every repository bound to the same connection or transaction
type Stores struct {
	users         *UserRepository
	organizations *OrganizationRepository
	members       *MemberRepository
	invitations   *InvitationRepository
	audit         *AuditRepository
}

// NewStores creates repositories over db, which may be a *sqlx.DB or a *sqlx.Tx
func NewStores(db sqlx.ExtContext) *Stores {
	return &Stores{
		users:         NewUserRepository(db),
		organizations: NewOrganizationRepository(db),
		members:       NewMemberRepository(db),
		invitations:   NewInvitationRepository(db),
		audit:         NewAuditRepository(db),
	}
}

func (s *Stores) Users() services.UserStore                 { return s.users }
func (s *Stores) Organizations() services.OrganizationStore { return s.organizations }
func (s *Stores) Members() services.MemberStore             { return s.members }
func (s *Stores) Invitations() services.InvitationStore     { return s.invitations }
func (s *Stores) AuditLogs() services.AuditStore            { return s.audit }

// TxRunner opens a transaction per unit of work
type TxRunner struct {
	db *sqlx.DB
}

// NewTxRunner creates a TxRunner over the connection pool
func NewTxRunner(db *sqlx.DB) *TxRunner {
	return &TxRunner{db: db}
}

// WithTx runs fn with stores bound to a new transaction. The transaction commits when fn
// returns nil and rolls back on error or panic.
func (r *TxRunner) WithTx(ctx context.Context, fn func(services.StoreProvider) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(NewStores(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var (
	_ services.StoreProvider = (*Stores)(nil)
	_ services.TxRunner      = (*TxRunner)(nil)
)
