package scheduler_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ateliercrm/canal/pkg/models"
	"github.com/ateliercrm/canal/pkg/persistence/file"
	"github.com/ateliercrm/canal/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func newTestScheduler(t *testing.T) (*scheduler.Scheduler, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	tracer := noop.NewTracerProvider().Tracer("test")

	return scheduler.New(p, nil, tracer, logger), p
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, scheduler.Validate("*/5 * * * *"))
	assert.NoError(t, scheduler.Validate("@every 10s"))
	assert.Error(t, scheduler.Validate("not a schedule"))
	assert.Error(t, scheduler.Validate("99 * * * *"))
}

func TestSync_OnlyActiveScheduledAutomations(t *testing.T) {
	t.Parallel()

	s, p := newTestScheduler(t)
	ctx := context.Background()

	scheduled := &models.Automation{Owner: "user-1", Name: "scheduled", Schedule: "*/5 * * * *", IsActive: true}
	inactive := &models.Automation{Owner: "user-1", Name: "inactive", Schedule: "*/5 * * * *", IsActive: false}
	unscheduled := &models.Automation{Owner: "user-1", Name: "on-demand", IsActive: true}

	for _, automation := range []*models.Automation{scheduled, inactive, unscheduled} {
		require.NoError(t, p.AutomationRepository().SaveAutomation(ctx, automation))
	}

	require.NoError(t, s.Start(ctx))
	t.Cleanup(s.Stop)

	assert.Equal(t, []string{scheduled.ID}, s.Jobs())
}

func TestSync_ReconcilesChanges(t *testing.T) {
	t.Parallel()

	s, p := newTestScheduler(t)
	ctx := context.Background()

	automation := &models.Automation{Owner: "user-1", Name: "mutable", Schedule: "*/5 * * * *", IsActive: true}
	require.NoError(t, p.AutomationRepository().SaveAutomation(ctx, automation))

	require.NoError(t, s.Start(ctx))
	t.Cleanup(s.Stop)

	require.Len(t, s.Jobs(), 1)

	// Deactivation removes the entry on the next sync.
	automation.IsActive = false
	require.NoError(t, p.AutomationRepository().SaveAutomation(ctx, automation))
	require.NoError(t, s.Sync(ctx))

	assert.Empty(t, s.Jobs())

	automation.IsActive = true
	automation.Schedule = "*/10 * * * *"
	require.NoError(t, p.AutomationRepository().SaveAutomation(ctx, automation))
	require.NoError(t, s.Sync(ctx))

	assert.Equal(t, []string{automation.ID}, s.Jobs())
}

func TestSync_SkipsInvalidSchedule(t *testing.T) {
	t.Parallel()

	s, p := newTestScheduler(t)
	ctx := context.Background()

	automation := &models.Automation{Owner: "user-1", Name: "broken", Schedule: "nonsense", IsActive: true}
	require.NoError(t, p.AutomationRepository().SaveAutomation(ctx, automation))

	require.NoError(t, s.Start(ctx))
	t.Cleanup(s.Stop)

	assert.Empty(t, s.Jobs())
}

func TestScheduledRunExecutesWebhook(t *testing.T) {
	t.Parallel()

	s, p := newTestScheduler(t)
	ctx := context.Background()

	fired := make(chan struct{}, 10)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fired <- struct{}{}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	automation := &models.Automation{
		Owner:         "user-1",
		Name:          "ticking",
		WebhookURL:    server.URL,
		WebhookMethod: models.MethodPost,
		Schedule:      "@every 1s",
		IsActive:      true,
	}
	require.NoError(t, p.AutomationRepository().SaveAutomation(ctx, automation))

	require.NoError(t, s.Start(ctx))
	t.Cleanup(s.Stop)

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled automation never fired")
	}

	// The terminal update lands shortly after the webhook returns.
	assert.Eventually(t, func() bool {
		executions, err := p.ExecutionRepository().Executions(ctx, "user-1", 0)
		if err != nil || len(executions) == 0 {
			return false
		}

		return executions[0].Status == models.ExecutionStatusSuccess
	}, 5*time.Second, 50*time.Millisecond)
}
