package core

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB defines the database operations used by the persistence services.
// Both *pgxpool.Pool and pgx.Tx satisfy this interface, so a service can run
// against the shared pool or inside a caller-owned transaction.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Services bundles the persistence services over one DB handle.
type Services struct {
	Job            *JobService
	File           *FileService
	Rule           *RuleService
	Registry       *RegistryService
	ScheduleTiming *ScheduleTimingService
}

func NewServices(db DB) *Services {
	return &Services{
		Job:            NewJobService(db),
		File:           NewFileService(db),
		Rule:           NewRuleService(db),
		Registry:       NewRegistryService(db),
		ScheduleTiming: NewScheduleTimingService(db),
	}
}
