package background_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetctl/core/internal/background"
	"github.com/fleetctl/core/internal/domain"
)

func TestSchedulerEnqueuesOnEveryTick(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	sched := background.NewScheduler(eng, nil)

	require.NoError(t, sched.Add(domain.ScheduleDefinition{
		ID: "nightly-sweep", Name: "sweep", CronExpr: "* * * * * *",
		Prompt: "sweep the repo", WorkspaceID: "ws-1", Enabled: true,
	}))
	sched.Start()
	defer sched.Stop()

	require.Eventually(t, func() bool {
		tasks, err := st.BackgroundTasks().ListReady(context.Background(), "ws-1")
		return err == nil && len(tasks) > 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestSchedulerSkipsDisabledDefinition(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	sched := background.NewScheduler(eng, nil)

	require.NoError(t, sched.Add(domain.ScheduleDefinition{
		ID: "off", Name: "off", CronExpr: "* * * * * *", WorkspaceID: "ws-1", Enabled: false,
	}))
	sched.Start()
	defer sched.Stop()

	time.Sleep(1200 * time.Millisecond)
	tasks, err := st.BackgroundTasks().ListReady(context.Background(), "ws-1")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
