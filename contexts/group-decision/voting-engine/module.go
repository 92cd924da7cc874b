package votingengine

import (
	"log/slog"
	"time"

	httpadapter "ideajar/contexts/group-decision/voting-engine/adapters/http"
	"ideajar/contexts/group-decision/voting-engine/adapters/memory"
	"ideajar/contexts/group-decision/voting-engine/application/commands"
	"ideajar/contexts/group-decision/voting-engine/application/queries"
	"ideajar/contexts/group-decision/voting-engine/application/workers"
	"ideajar/contexts/group-decision/voting-engine/ports"
)

type Module struct {
	Handler       httpadapter.Handler
	Sessions      commands.SessionUseCase
	Status        queries.StatusUseCase
	OutboxRelay   workers.OutboxRelay
	Sweeper       workers.DeadlineSweeper
	WinnerHandoff workers.WinnerHandoffConsumer
	Store         *memory.Store
}

// Repository is everything the module needs from one storage backend.
type Repository interface {
	ports.UnitOfWork
	ports.Repository
	ports.OutboxRepository
}

type Dependencies struct {
	Repository  Repository
	Ideas       ports.IdeaInventory
	Members     ports.Membership
	Idempotency ports.IdempotencyStore
	Dedup       ports.EventDedupStore
	Selection   ports.IdeaSelection
	Notifier    ports.Notifier
	Publisher   ports.EventPublisher
	Subscriber  ports.EventSubscriber
	Metrics     ports.Metrics
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	Random      ports.RandomSource

	IdempotencyTTL       time.Duration
	DedupTTL             time.Duration
	ExtendMinutes        int
	CandidateCount       int
	OutboxBatchSize      int
	SweepBatchSize       int
	DisableWinnerHandoff bool
	Logger               *slog.Logger
}

func NewModule(deps Dependencies) Module {
	sessions := commands.SessionUseCase{
		UnitOfWork:     deps.Repository,
		Ideas:          deps.Ideas,
		Members:        deps.Members,
		Idempotency:    deps.Idempotency,
		Notifier:       deps.Notifier,
		Metrics:        deps.Metrics,
		Clock:          deps.Clock,
		IDGen:          deps.IDGen,
		Random:         deps.Random,
		IdempotencyTTL: deps.IdempotencyTTL,
		ExtendMinutes:  deps.ExtendMinutes,
		CandidateCount: deps.CandidateCount,
		Logger:         deps.Logger,
	}
	status := queries.StatusUseCase{
		Sessions: deps.Repository,
		Ballots:  deps.Repository,
		Vetoes:   deps.Repository,
		Members:  deps.Members,
		Expirer:  sessions,
		Clock:    deps.Clock,
		Logger:   deps.Logger,
	}
	audit := queries.AuditUseCase{
		Sessions: deps.Repository,
		Ballots:  deps.Repository,
		Vetoes:   deps.Repository,
		Members:  deps.Members,
	}
	return Module{
		Handler: httpadapter.Handler{
			Sessions: sessions,
			Status:   status,
			Audit:    audit,
			Logger:   deps.Logger,
		},
		Sessions: sessions,
		Status:   status,
		OutboxRelay: workers.OutboxRelay{
			Outbox:    deps.Repository,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			BatchSize: deps.OutboxBatchSize,
			Logger:    deps.Logger,
		},
		Sweeper: workers.DeadlineSweeper{
			Sessions:  deps.Repository,
			Expirer:   sessions,
			Clock:     deps.Clock,
			BatchSize: deps.SweepBatchSize,
			Logger:    deps.Logger,
		},
		WinnerHandoff: workers.WinnerHandoffConsumer{
			Subscriber: deps.Subscriber,
			Dedup:      deps.Dedup,
			Selection:  deps.Selection,
			Clock:      deps.Clock,
			DedupTTL:   deps.DedupTTL,
			Disabled:   deps.DisableWinnerHandoff,
			Logger:     deps.Logger,
		},
	}
}

// NewInMemoryModule wires the module over a single memory.Store. The bus ports
// are left empty; callers that run the workers set Publisher and Subscriber on
// the returned module.
func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Repository:     store,
		Ideas:          store,
		Members:        store,
		Idempotency:    store,
		Dedup:          store,
		Selection:      store,
		Clock:          store,
		IDGen:          store,
		IdempotencyTTL: 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	return module
}
