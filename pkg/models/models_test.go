package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to SessionStatus
		want     bool
	}{
		{SessionStatusPending, SessionStatusInProgress, true},
		{SessionStatusInProgress, SessionStatusCompleted, true},
		{SessionStatusInProgress, SessionStatusPaused, true},
		{SessionStatusInProgress, SessionStatusCanceling, true},
		{SessionStatusPaused, SessionStatusInProgress, true},
		{SessionStatusPaused, SessionStatusCanceling, true},
		{SessionStatusCanceling, SessionStatusCancelled, true},
		{SessionStatusPending, SessionStatusCompleted, false},
		{SessionStatusPaused, SessionStatusCompleted, false},
		{SessionStatusCanceling, SessionStatusInProgress, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	all := []SessionStatus{
		SessionStatusPending, SessionStatusInProgress, SessionStatusPaused, SessionStatusCanceling,
		SessionStatusCancelled, SessionStatusCompleted, SessionStatusFailed, SessionStatusTimedOut,
	}
	for _, from := range TerminalSessionStatuses {
		assert.True(t, from.IsTerminal())
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, SessionStatusCanceling.IsTerminal())
	assert.False(t, SessionStatusPaused.IsTerminal())
	assert.False(t, SessionStatus("bogus").IsValid())
}

func TestPredecessorsOf(t *testing.T) {
	tests := []struct {
		to   SessionStatus
		want []SessionStatus
	}{
		{SessionStatusPending, nil},
		{SessionStatusInProgress, []SessionStatus{SessionStatusPending, SessionStatusPaused}},
		{SessionStatusPaused, []SessionStatus{SessionStatusInProgress}},
		{SessionStatusCanceling, []SessionStatus{SessionStatusPending, SessionStatusInProgress, SessionStatusPaused}},
		{SessionStatusCancelled, []SessionStatus{SessionStatusCanceling}},
		{SessionStatusCompleted, []SessionStatus{SessionStatusInProgress}},
		{SessionStatusFailed, []SessionStatus{SessionStatusInProgress, SessionStatusCanceling}},
		{SessionStatusTimedOut, []SessionStatus{SessionStatusInProgress, SessionStatusCanceling}},
	}
	for _, tt := range tests {
		t.Run(string(tt.to), func(t *testing.T) {
			got := PredecessorsOf(tt.to)
			assert.Equal(t, tt.want, got)
			for _, from := range got {
				assert.False(t, from.IsTerminal())
			}
		})
	}
}

func TestStageExecutionFinish(t *testing.T) {
	started := int64(1_000_000)
	s := &StageExecution{StartedAtUs: &started}
	s.Finish(StageStatusFailed, 3_500_000)

	assert.Equal(t, StageStatusFailed, s.Status)
	require.NotNil(t, s.DurationMs)
	assert.Equal(t, int64(2500), *s.DurationMs)

	unstarted := &StageExecution{}
	unstarted.Finish(StageStatusFailed, 3_500_000)
	assert.Nil(t, unstarted.DurationMs)
	assert.Equal(t, int64(3_500_000), *unstarted.CompletedAtUs)
}

func TestChainContextFromSession(t *testing.T) {
	alert := json.RawMessage(`{"namespace":"prod","severity":"critical"}`)
	s := &Session{
		ID:          "s-1",
		AlertType:   "PodCrash",
		ChainID:     "k8s",
		AlertData:   alert,
		Author:      "oncall",
		RunbookURL:  "https://runbooks/pod-crash.md",
		StartedAtUs: 42,
		MCPSelection: &MCPSelectionConfig{
			Servers: []MCPServerSelection{{Name: "kubernetes-server"}},
		},
		SessionMetadata: map[string]any{"source": "alertmanager"},
	}

	cc, err := ChainContextFromSession(s)
	require.NoError(t, err)
	assert.Equal(t, "s-1", cc.SessionID)
	assert.Equal(t, "PodCrash", cc.AlertType)
	assert.JSONEq(t, string(alert), string(cc.AlertData))
	assert.Equal(t, int64(42), cc.ProcessingStartedAtUs)
	assert.Equal(t, []string{"kubernetes-server"}, cc.MCPSelection.ServerNames())

	_, err = ChainContextFromSession(&Session{ID: "s-2"})
	assert.ErrorIs(t, err, ErrMissingAlertData)

	_, err = ChainContextFromSession(&Session{ID: "s-3", AlertData: json.RawMessage(`{broken`)})
	assert.Error(t, err)
}

func TestNewSession(t *testing.T) {
	chain := &ChainDefinition{
		ChainID: "kubernetes",
		Stages:  []ChainStageDefinition{{Name: "investigate", Agent: "KubernetesAgent"}},
	}
	s, err := NewSession(&ChainContext{
		SessionID: "abc",
		AlertType: "PodCrash",
		AlertData: json.RawMessage(`{"a":1}`),
	}, chain)
	require.NoError(t, err)

	assert.Equal(t, SessionStatusPending, s.Status)
	assert.Equal(t, "chain:kubernetes", s.AgentType)
	assert.Equal(t, "kubernetes", s.ChainID)
	assert.NotZero(t, s.StartedAtUs)

	var decoded ChainDefinition
	require.NoError(t, json.Unmarshal(s.ChainDefinition, &decoded))
	assert.Equal(t, "investigate", decoded.Stages[0].Name)
}
