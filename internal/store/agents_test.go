package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestListActiveAgents tests listing and scanning of active agent rows
func TestListActiveAgents(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewAgentStore(mock)

	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"id", "wallet_address", "secret_path", "risk_profile", "leverage", "is_active", "created_at", "updated_at",
	}).
		AddRow("agent-1", "0xabc", "agents/agent-1", "conservative", 3.0, true, now.Add(-time.Hour), now).
		AddRow("agent-2", "0xdef", "agents/agent-2", "spot_dca", 1.0, true, now, now)

	mock.ExpectQuery("SELECT(.+)FROM agents").WillReturnRows(rows)

	agents, err := s.ListActiveAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 2)

	assert.Equal(t, "agent-1", agents[0].ID)
	assert.Equal(t, "0xabc", agents[0].WalletAddress)
	assert.Equal(t, ProfileConservative, agents[0].Strategy.Profile)
	assert.Equal(t, 3.0, agents[0].Strategy.Leverage)
	assert.True(t, agents[0].IsActive)

	assert.Equal(t, ProfileSpotDCA, agents[1].Strategy.Profile)

	require.NoError(t, mock.ExpectationsWereMet())
}

// TestListActiveAgentsEmpty tests an empty result set
func TestListActiveAgentsEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewAgentStore(mock)

	rows := pgxmock.NewRows([]string{
		"id", "wallet_address", "secret_path", "risk_profile", "leverage", "is_active", "created_at", "updated_at",
	})
	mock.ExpectQuery("SELECT(.+)FROM agents").WillReturnRows(rows)

	agents, err := s.ListActiveAgents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, agents)

	require.NoError(t, mock.ExpectationsWereMet())
}

// TestGetAgent tests fetching a single agent
func TestGetAgent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewAgentStore(mock)

	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"id", "wallet_address", "secret_path", "risk_profile", "leverage", "is_active", "created_at", "updated_at",
	}).
		AddRow("agent-9", "0x123", "agents/agent-9", "aggressive", 5.0, false, now, now)

	mock.ExpectQuery("SELECT(.+)FROM agents").WithArgs("agent-9").WillReturnRows(rows)

	agent, err := s.GetAgent(context.Background(), "agent-9")
	require.NoError(t, err)

	assert.Equal(t, ProfileAggressive, agent.Strategy.Profile)
	assert.Equal(t, 5.0, agent.Strategy.Leverage)
	assert.False(t, agent.IsActive)

	require.NoError(t, mock.ExpectationsWereMet())
}

// TestProfileValid tests the closed set of strategy tags
func TestProfileValid(t *testing.T) {
	assert.True(t, ProfileConservative.Valid())
	assert.True(t, ProfileAggressive.Valid())
	assert.True(t, ProfileSpotDCA.Valid())
	assert.False(t, Profile("momentum").Valid())
	assert.False(t, Profile("").Valid())
}
