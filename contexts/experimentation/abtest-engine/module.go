package abtestengine

import (
	"context"
	"log/slog"

	httpadapter "newsfinder/contexts/experimentation/abtest-engine/adapters/http"
	"newsfinder/contexts/experimentation/abtest-engine/adapters/memory"
	"newsfinder/contexts/experimentation/abtest-engine/application/commands"
	"newsfinder/contexts/experimentation/abtest-engine/application/policy"
	"newsfinder/contexts/experimentation/abtest-engine/application/registry"
	"newsfinder/contexts/experimentation/abtest-engine/application/simulation"
	"newsfinder/contexts/experimentation/abtest-engine/application/workers"
	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	"newsfinder/contexts/experimentation/abtest-engine/ports"
)

const defaultEpsilon = 0.1

type Module struct {
	Handler   httpadapter.Handler
	Engine    commands.ExperimentEngine
	Registry  *registry.Registry
	Simulator simulation.Simulator
	Relay     workers.OutboxRelay
	Store     *memory.Store
}

type Dependencies struct {
	Campaigns     []entities.Campaign
	Assignments   ports.AssignmentStore
	Models        ports.ModelRepository
	Outbox        ports.OutboxWriter
	OutboxReader  ports.OutboxRepository
	Publisher     ports.EventPublisher
	Observer      ports.Observer
	Clock         ports.Clock
	IDGen         ports.IDGenerator
	DefaultPolicy entities.PolicyName
	// Epsilon is the e-greedy exploration rate. Nil selects the default; zero
	// means pure exploitation.
	Epsilon  *float64
	Random   *policy.Random
	FailSafe bool
	Logger   *slog.Logger
}

// NewModule validates the campaign definitions and seeds every variant's
// initial model into the repository before serving.
func NewModule(ctx context.Context, deps Dependencies) (Module, error) {
	campaignRegistry, err := registry.New(deps.Campaigns, deps.Models)
	if err != nil {
		return Module{}, err
	}
	if err := campaignRegistry.Seed(ctx); err != nil {
		return Module{}, err
	}

	defaultPolicy := deps.DefaultPolicy
	if defaultPolicy == "" {
		defaultPolicy = entities.PolicyThompsonSampling
	}
	epsilon := defaultEpsilon
	if deps.Epsilon != nil {
		epsilon = *deps.Epsilon
	}
	policies, err := policy.NewStandardSet(defaultPolicy, deps.Random, epsilon)
	if err != nil {
		return Module{}, err
	}

	engine := commands.ExperimentEngine{
		Registry:    campaignRegistry,
		Assignments: deps.Assignments,
		Models:      deps.Models,
		Policies:    policies,
		Outbox:      deps.Outbox,
		Observer:    deps.Observer,
		Clock:       deps.Clock,
		IDGen:       deps.IDGen,
		FailSafe:    deps.FailSafe,
		Logger:      deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Engine:    engine,
			Campaigns: campaignRegistry,
			Logger:    deps.Logger,
		},
		Engine:   engine,
		Registry: campaignRegistry,
		Simulator: simulation.Simulator{
			Engine: engine,
			Random: deps.Random,
			Logger: deps.Logger,
		},
		Relay: workers.OutboxRelay{
			Outbox:    deps.OutboxReader,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			Logger:    deps.Logger,
		},
	}, nil
}

func NewInMemoryModule(campaigns []entities.Campaign, random *policy.Random, logger *slog.Logger) (Module, error) {
	store := memory.NewStore(nil)
	module, err := NewModule(context.Background(), Dependencies{
		Campaigns:    campaigns,
		Assignments:  store,
		Models:       store,
		Outbox:       store,
		OutboxReader: store,
		Clock:        store,
		IDGen:        store,
		Random:       random,
		FailSafe:     true,
		Logger:       logger,
	})
	if err != nil {
		return Module{}, err
	}
	module.Store = store
	return module, nil
}
