// Package store provides read access to persisted trading agents.
// Agent records are created and mutated by the management surface outside
// this process; the engine only lists active agents and must re-read them
// every cycle because is_active and the strategy config can change between
// ticks.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Profile selects which strategy executor trades for an agent
type Profile string

const (
	ProfileConservative Profile = "conservative"
	ProfileAggressive   Profile = "aggressive"
	ProfileSpotDCA      Profile = "spot_dca"
)

// Valid reports whether the profile is a known strategy tag
func (p Profile) Valid() bool {
	switch p {
	case ProfileConservative, ProfileAggressive, ProfileSpotDCA:
		return true
	}
	return false
}

// StrategyConfig is the per-agent risk configuration
type StrategyConfig struct {
	Profile  Profile `json:"profile"`
	Leverage float64 `json:"leverage"`
}

// Agent is one persisted trading agent
type Agent struct {
	ID            string         `db:"id" json:"id"`
	WalletAddress string         `db:"wallet_address" json:"wallet_address"`
	SecretPath    string         `db:"secret_path" json:"-"` // Vault path of the agent's signing credentials
	Strategy      StrategyConfig `json:"strategy"`
	IsActive      bool           `db:"is_active" json:"is_active"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// PoolInterface defines the interface for database pool operations
type PoolInterface interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// AgentStore lists agents from PostgreSQL
type AgentStore struct {
	pool PoolInterface
}

// NewAgentStore creates an agent store backed by a query pool
func NewAgentStore(pool PoolInterface) *AgentStore {
	return &AgentStore{pool: pool}
}

// NewAgentStoreWithPool creates an agent store backed by a pgxpool.Pool
func NewAgentStoreWithPool(pool *pgxpool.Pool) *AgentStore {
	return &AgentStore{pool: pool}
}

// ListActiveAgents returns all agents with is_active = true, oldest first
func (s *AgentStore) ListActiveAgents(ctx context.Context) ([]*Agent, error) {
	query := `
		SELECT id, wallet_address, secret_path, risk_profile, leverage, is_active, created_at, updated_at
		FROM agents
		WHERE is_active = true
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		var agent Agent
		var profile string
		err := rows.Scan(
			&agent.ID,
			&agent.WalletAddress,
			&agent.SecretPath,
			&profile,
			&agent.Strategy.Leverage,
			&agent.IsActive,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent row: %w", err)
		}
		agent.Strategy.Profile = Profile(profile)
		agents = append(agents, &agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agent row iteration failed: %w", err)
	}

	return agents, nil
}

// GetAgent returns one agent by ID
func (s *AgentStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	query := `
		SELECT id, wallet_address, secret_path, risk_profile, leverage, is_active, created_at, updated_at
		FROM agents
		WHERE id = $1
	`

	var agent Agent
	var profile string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&agent.ID,
		&agent.WalletAddress,
		&agent.SecretPath,
		&profile,
		&agent.Strategy.Leverage,
		&agent.IsActive,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent %s: %w", id, err)
	}
	agent.Strategy.Profile = Profile(profile)

	return &agent, nil
}
