package tasks

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/ircrelay/internal/history"
)

type staticStatus ConnectionStatus

func (s staticStatus) Status() ConnectionStatus { return ConnectionStatus(s) }

type staticBreaker string

func (b staticBreaker) BreakerState() string { return string(b) }

func TestRegisterAllTasks(t *testing.T) {
	var buf bytes.Buffer
	got := RegisterAllTasks(TaskDeps{Logger: slog.New(slog.NewTextHandler(&buf, nil))})
	assert.Contains(t, got, "status_report")
}

func TestStatusReportLogsState(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	store := history.New(2)
	store.Ensure("#quiet")
	store.Append("#Go", history.RoleUser, "alice", "hi")
	store.Append("#go", history.RoleAssistant, "Relay", "hello")

	task := RegisterAllTasks(TaskDeps{
		Logger: log,
		Store:  store,
		Connection: staticStatus{
			State:       "connected",
			Nick:        "Relay_",
			Attempts:    0,
			Connections: 2,
			Delay:       15 * time.Second,
		},
		Breaker: staticBreaker("closed"),
	})["status_report"]

	require.NoError(t, task(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "msg=\"Status report\"")
	assert.Contains(t, out, "state=connected")
	assert.Contains(t, out, "nick=Relay_")
	assert.Contains(t, out, "connections=2")
	assert.Contains(t, out, "next_delay=15s")
	assert.Contains(t, out, "breaker=closed")
	assert.Contains(t, out, "history.#go=2")
	assert.Contains(t, out, "history.#quiet=0")
	assert.Contains(t, out, "history_limit=4")
}

func TestStatusReportWithoutSources(t *testing.T) {
	var buf bytes.Buffer
	task := newStatusReportTask(TaskDeps{Logger: slog.New(slog.NewTextHandler(&buf, nil))})
	require.NoError(t, task(context.Background()))
	assert.Contains(t, buf.String(), "Status report")
}
