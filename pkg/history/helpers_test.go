package history_test

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/tarsy-core/pkg/database"
	"github.com/codeready-toolchain/tarsy-core/pkg/history"
	"github.com/codeready-toolchain/tarsy-core/pkg/models"
	testdb "github.com/codeready-toolchain/tarsy-core/test/database"
)

func testRetryConfig() history.RetryConfig {
	return history.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

// newSQLiteService returns a service over a fresh SQLite database and the
// raw handle for arranging and inspecting rows.
func newSQLiteService(t *testing.T) (*history.Service, *stdsql.DB) {
	t.Helper()
	client := testdb.NewSQLiteTestClient(t)
	return serviceFor(client), client.DB()
}

func serviceFor(client *database.Client) *history.Service {
	return history.NewService(history.NewInfraFromClient(client, testRetryConfig(), nil))
}

var testChain = &models.ChainDefinition{
	ChainID:    "kubernetes-investigation",
	AlertTypes: []string{"PodCrashLoop"},
	Stages:     []models.ChainStageDefinition{{Name: "analysis", Agent: "KubernetesAgent"}},
}

// createSession submits a pending session started at startedAtUs (now when 0).
func createSession(t *testing.T, svc *history.Service, startedAtUs int64) string {
	t.Helper()
	id := uuid.New().String()
	cc := &models.ChainContext{
		SessionID:             id,
		AlertType:             "PodCrashLoop",
		AlertData:             json.RawMessage(`{"namespace":"prod","pod":"api-0"}`),
		Author:                "alice",
		ProcessingStartedAtUs: startedAtUs,
	}
	require.True(t, svc.CreateSession(context.Background(), cc, testChain))
	return id
}

func setSessionColumn(t *testing.T, db *stdsql.DB, id, column string, value any) {
	t.Helper()
	_, err := db.Exec(fmt.Sprintf("UPDATE alert_sessions SET %s = ? WHERE session_id = ?", column), value, id)
	require.NoError(t, err)
}

func countRows(t *testing.T, db *stdsql.DB, table, sessionID string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE session_id = ?", table), sessionID).Scan(&n))
	return n
}

func minutesAgoUs(m int) int64 {
	return time.Now().Add(-time.Duration(m) * time.Minute).UnixMicro()
}

func ptr[T any](v T) *T {
	return &v
}

func newSQLiteClient(t *testing.T) *database.Client {
	t.Helper()
	return testdb.NewSQLiteTestClient(t)
}
