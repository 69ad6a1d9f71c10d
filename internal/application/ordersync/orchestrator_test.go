package ordersync

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/ecommerce"
	"github.com/beautyops/backend/internal/infrastructure/ecommerce/naverfake"
)

// bcrypt setting with the minimum cost keeps signing fast
const testSecret = "$2a$04$abcdefghijklmnopqrstuv"

func newNaverFeed(t *testing.T, fake *naverfake.Server) *ecommerce.NaverFeed {
	t.Helper()
	cfg := ecommerce.NewNaverConfig()
	cfg.BaseURL = fake.URL
	cfg.RequestsPerSecond = 0
	feed, err := ecommerce.NewNaverFeed(cfg, nil, nil)
	require.NoError(t, err)
	return feed
}

func naverRequest(clientID string) *integration.SyncRequest {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	return &integration.SyncRequest{
		Channel:    integration.ChannelNaver,
		StartDate:  day,
		EndDate:    day,
		Credential: integration.Credential{ClientID: clientID, ClientSecret: testSecret},
	}
}

func waitResult(t *testing.T, run *Run) *integration.SyncResult {
	t.Helper()
	select {
	case <-run.Done():
		return run.Wait()
	case <-time.After(10 * time.Second):
		t.Fatal("run did not finish")
		return nil
	}
}

func TestOrchestrator_IdempotentUpsert(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()
	fake.SetPages(naverfake.IDs("a", 50), naverfake.IDs("b", 50), naverfake.IDs("c", 12))

	repo := newMemoryOrderRepository()
	o := NewOrchestrator(DefaultConfig(), repo, WithFeed(newNaverFeed(t, fake)))
	assert.Equal(t, integration.SyncModeDirect, o.Mode())

	first, err := o.Sync(context.Background(), naverRequest(fake.ClientID))
	require.NoError(t, err)
	assert.True(t, first.Success, first.Message)
	assert.Equal(t, 112, first.Created)
	assert.Equal(t, 0, first.Updated)
	assert.Equal(t, 112, first.Synced)
	assert.Equal(t, []string{"", "c1", "c2"}, fake.PageCursors())

	second, err := o.Sync(context.Background(), naverRequest(fake.ClientID))
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 112, second.Updated)
	assert.Equal(t, 112, repo.count())
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 2, fake.TokenCalls())
}

func TestOrchestrator_PartialBatchFailure(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()
	fake.SetPages(naverfake.IDs("a", 650))
	fake.FailDetail = func(ids []string) int {
		if ids[0] == "a0301" {
			return http.StatusInternalServerError
		}
		return 0
	}

	repo := newMemoryOrderRepository()
	metrics := &recordingMetrics{}
	o := NewOrchestrator(DefaultConfig(), repo, WithFeed(newNaverFeed(t, fake)), WithMetrics(metrics))

	result, err := o.Sync(context.Background(), naverRequest(fake.ClientID))
	require.NoError(t, err)

	assert.True(t, result.Success, result.Message)
	assert.Equal(t, 350, result.Synced)
	assert.Equal(t, 300, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "batch 2/3")
	assert.ElementsMatch(t, []int{300, 300, 50}, fake.DetailSizes())
	assert.Equal(t, 350, repo.count())

	assert.Equal(t, 1, metrics.batchFailures)
	require.Len(t, metrics.runs, 1)
	assert.Equal(t, 350, metrics.runs[0].Synced)
}

func TestOrchestrator_FatalAuthFailure(t *testing.T) {
	tests := []struct {
		name       string
		cred       integration.Credential
		wantErr    string
		tokenCalls int
	}{
		{
			name:       "rejected credentials",
			cred:       integration.Credential{ClientID: "someone-else", ClientSecret: testSecret},
			wantErr:    "authentication failed",
			tokenCalls: 1,
		},
		{
			name:       "malformed secret",
			cred:       integration.Credential{ClientID: "fake-client", ClientSecret: "not-a-bcrypt-salt"},
			wantErr:    "signing failed",
			tokenCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := naverfake.New()
			defer fake.Close()
			fake.SetPages(naverfake.IDs("a", 5))

			repo := newMemoryOrderRepository()
			runLog := newMemoryRunLog()
			o := NewOrchestrator(DefaultConfig(), repo, WithFeed(newNaverFeed(t, fake)), WithRunLog(runLog))

			req := naverRequest("")
			req.Credential = tt.cred
			result, err := o.Sync(context.Background(), req)
			require.NoError(t, err)

			assert.False(t, result.Success)
			assert.Contains(t, result.Message, tt.wantErr)
			assert.NotContains(t, result.Message, testSecret)
			assert.Zero(t, result.Synced)
			assert.Zero(t, repo.count())
			assert.Empty(t, fake.PageCursors())
			assert.Equal(t, tt.tokenCalls, fake.TokenCalls())

			run := runLog.get(result.RunID)
			assert.Equal(t, integration.SyncRunStatusFailed, run.Status)
			require.NotNil(t, run.FinishedAt)
		})
	}
}

func TestOrchestrator_FetchErrorKeepsReconciledPages(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()
	fake.SetPages(naverfake.IDs("a", 3), naverfake.IDs("b", 2), naverfake.IDs("c", 1))
	fake.FailPage = func(cursor string) int {
		if cursor == "c2" {
			return http.StatusServiceUnavailable
		}
		return 0
	}

	repo := newMemoryOrderRepository()
	o := NewOrchestrator(DefaultConfig(), repo, WithFeed(newNaverFeed(t, fake)))

	result, err := o.Sync(context.Background(), naverRequest(fake.ClientID))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "changed orders fetch failed")
	assert.Equal(t, 5, result.Synced)
	assert.Equal(t, 5, repo.count())
}

func TestOrchestrator_ProgressStream(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()
	fake.SetPages(naverfake.IDs("a", 2), naverfake.IDs("b", 1))

	o := NewOrchestrator(DefaultConfig(), newMemoryOrderRepository(), WithFeed(newNaverFeed(t, fake)))
	run, err := o.Start(context.Background(), naverRequest(fake.ClientID))
	require.NoError(t, err)
	assert.Equal(t, integration.ChannelNaver, run.Channel())

	var snapshots []integration.SyncProgress
	for p := range run.Progress() {
		snapshots = append(snapshots, p)
	}
	result := waitResult(t, run)
	require.True(t, result.Success)

	require.NotEmpty(t, snapshots)
	assert.Equal(t, integration.SyncPhaseAuthenticating, snapshots[0].Phase)
	last := snapshots[len(snapshots)-1]
	assert.Equal(t, integration.SyncPhaseDone, last.Phase)
	assert.Equal(t, 3, last.Current)
	assert.Equal(t, 3, last.Total)
	assert.Equal(t, 3, last.SyncedSoFar)

	phases := make(map[integration.SyncPhase]bool)
	for _, p := range snapshots {
		phases[p.Phase] = true
		assert.Equal(t, run.ID(), p.RunID)
		assert.LessOrEqual(t, p.Current, p.Total)
	}
	for _, phase := range []integration.SyncPhase{
		integration.SyncPhasePaginating,
		integration.SyncPhaseResolving,
		integration.SyncPhaseReconciling,
	} {
		assert.True(t, phases[phase], "missing phase %s", phase)
	}
}

func TestOrchestrator_SlowReaderNeverBlocksRun(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()
	fake.SetPages(naverfake.IDs("a", 20), naverfake.IDs("b", 20), naverfake.IDs("c", 20))

	cfg := DefaultConfig()
	cfg.ProgressBuffer = 1
	o := NewOrchestrator(cfg, newMemoryOrderRepository(), WithFeed(newNaverFeed(t, fake)))
	run, err := o.Start(context.Background(), naverRequest(fake.ClientID))
	require.NoError(t, err)

	result := waitResult(t, run)
	assert.True(t, result.Success)

	var last integration.SyncProgress
	for p := range run.Progress() {
		last = p
	}
	assert.Equal(t, integration.SyncPhaseDone, last.Phase)
}

func TestOrchestrator_Cancellation(t *testing.T) {
	feed := &scriptedFeed{
		channel: integration.ChannelNaver,
		pages:   [][]integration.OrderIdentifier{identifiers([]string{"p1", "p2"})},
		hang:    true,
	}
	repo := newMemoryOrderRepository()
	runLog := newMemoryRunLog()
	locker := &stubLocker{}
	o := NewOrchestrator(DefaultConfig(), repo, WithFeed(feed), WithRunLog(runLog), WithRunLocker(locker))

	run, err := o.Start(context.Background(), naverRequest("client"))
	require.NoError(t, err)

	for p := range run.Progress() {
		if p.Phase == integration.SyncPhasePaginating && p.SyncedSoFar == 2 {
			run.Cancel()
		}
	}
	result := waitResult(t, run)

	assert.False(t, result.Success)
	assert.Equal(t, "sync cancelled", result.Message)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, 2, repo.count())
	assert.Equal(t, 2, feed.nextCalls())
	assert.Equal(t, integration.SyncRunStatusCancelled, runLog.get(result.RunID).Status)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)
}

func TestOrchestrator_ParentContextCancelled(t *testing.T) {
	feed := &scriptedFeed{channel: integration.ChannelNaver, hang: true}
	o := NewOrchestrator(DefaultConfig(), newMemoryOrderRepository(), WithFeed(feed))

	ctx, cancel := context.WithCancel(context.Background())
	run, err := o.Start(ctx, naverRequest("client"))
	require.NoError(t, err)
	cancel()

	result := waitResult(t, run)
	assert.False(t, result.Success)
	assert.Equal(t, "sync cancelled", result.Message)
}

func TestOrchestrator_ErrorDisplayCap(t *testing.T) {
	ids := make([]string, 15)
	for i := range ids {
		ids[i] = string(rune('a'+i)) + "-id"
	}
	feed := &scriptedFeed{channel: integration.ChannelNaver, pages: [][]integration.OrderIdentifier{identifiers(ids)}}
	repo := newMemoryOrderRepository()
	repo.failCreate = func(*integration.OrderRecord) error { return errors.New("disk full") }

	o := NewOrchestrator(DefaultConfig(), repo, WithFeed(feed))
	result, err := o.Sync(context.Background(), naverRequest("client"))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 15, result.Failed)
	assert.Zero(t, result.Synced)
	assert.Len(t, result.Errors, integration.MaxDisplayedErrors)
	assert.Equal(t, 5, result.HiddenErrors)
	assert.Equal(t, 15, result.ErrorCount())
}

func TestOrchestrator_RejectsBeforeAnyCall(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()
	o := NewOrchestrator(DefaultConfig(), newMemoryOrderRepository(), WithFeed(newNaverFeed(t, fake)))

	reversed := naverRequest(fake.ClientID)
	reversed.StartDate = reversed.EndDate.AddDate(0, 0, 1)

	missingSecret := naverRequest(fake.ClientID)
	missingSecret.Credential.ClientSecret = ""

	coupang := naverRequest(fake.ClientID)
	coupang.Channel = integration.ChannelCoupang

	unknown := naverRequest(fake.ClientID)
	unknown.Channel = "gmarket"

	tests := []struct {
		name    string
		req     *integration.SyncRequest
		wantErr error
	}{
		{name: "reversed range", req: reversed, wantErr: integration.ErrInvalidDateRange},
		{name: "missing secret", req: missingSecret, wantErr: integration.ErrMissingCredential},
		{name: "unconfigured channel", req: coupang, wantErr: integration.ErrChannelNotConfigured},
		{name: "unknown channel", req: unknown, wantErr: integration.ErrInvalidChannel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, err := o.Start(context.Background(), tt.req)
			assert.Nil(t, run)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Zero(t, fake.TokenCalls())
}

func TestOrchestrator_LockHeld(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()
	locker := &stubLocker{err: integration.ErrSyncInProgress}
	o := NewOrchestrator(DefaultConfig(), newMemoryOrderRepository(),
		WithFeed(newNaverFeed(t, fake)), WithRunLocker(locker))

	_, err := o.Sync(context.Background(), naverRequest(fake.ClientID))
	assert.ErrorIs(t, err, integration.ErrSyncInProgress)
	assert.Zero(t, fake.TokenCalls())
}

func TestOrchestrator_LockExtendedWhileRunning(t *testing.T) {
	tests := []struct {
		name      string
		extendErr error
		atLeast   int
	}{
		{name: "lease renewed until the run ends", atLeast: 3},
		{name: "lost lease stops renewal", extendErr: errors.New("lock taken over"), atLeast: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := &scriptedFeed{channel: integration.ChannelNaver, hang: true}
			locker := &stubLocker{extendErr: tt.extendErr}
			cfg := DefaultConfig()
			cfg.LockTTL = 30 * time.Millisecond
			o := NewOrchestrator(cfg, newMemoryOrderRepository(), WithFeed(feed), WithRunLocker(locker))

			run, err := o.Start(context.Background(), naverRequest("client"))
			require.NoError(t, err)

			require.Eventually(t, func() bool {
				extended, _ := locker.counts()
				return extended >= tt.atLeast
			}, 2*time.Second, 5*time.Millisecond)

			run.Cancel()
			result := waitResult(t, run)
			assert.False(t, result.Success)

			extended, released := locker.counts()
			assert.Equal(t, 1, released)
			if tt.extendErr != nil {
				assert.Equal(t, 1, extended, "renewal stops after the first failure")
			}

			time.Sleep(50 * time.Millisecond)
			after, _ := locker.counts()
			assert.Equal(t, extended, after, "no renewal after release")
		})
	}
}

func TestOrchestrator_Archive(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()
	fake.SetPages(naverfake.IDs("a", 2), naverfake.IDs("b", 1))

	archive := &recordingArchive{err: errors.New("bucket unavailable")}
	o := NewOrchestrator(DefaultConfig(), newMemoryOrderRepository(),
		WithFeed(newNaverFeed(t, fake)), WithArchive(archive))

	result, err := o.Sync(context.Background(), naverRequest(fake.ClientID))
	require.NoError(t, err)
	assert.True(t, result.Success, "archive failures must not fail the run")

	require.Len(t, archive.batches, 2)
	assert.Equal(t, 1, archive.batches[0].Sequence)
	assert.Equal(t, 2, archive.batches[1].Sequence)
	assert.Equal(t, result.RunID, archive.batches[0].RunID)
	assert.Len(t, archive.batches[0].Records, 2)
}

func TestOrchestrator_RelayMode(t *testing.T) {
	t.Run("reconciles relayed orders", func(t *testing.T) {
		relay := &stubRelay{resolution: &integration.DetailResolution{
			Records: []*integration.OrderRecord{
				stubRecord(integration.ChannelNaver, "p1"),
				stubRecord(integration.ChannelNaver, "p2"),
			},
			Skipped:  3,
			Failures: []error{&integration.DetailBatchError{Batch: 2, Batches: 2, Size: 3, StatusCode: 500}},
		}}
		repo := newMemoryOrderRepository()
		o := NewOrchestrator(DefaultConfig(), repo, WithRelay(relay))
		assert.Equal(t, integration.SyncModeRelay, o.Mode())
		assert.Equal(t, []integration.ChannelCode{integration.ChannelNaver}, o.Channels())

		result, err := o.Sync(context.Background(), naverRequest("client"))
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, integration.SyncModeRelay, result.Mode)
		assert.Equal(t, 2, result.Created)
		assert.Equal(t, 3, result.Skipped)
		assert.Len(t, result.Errors, 1)
		assert.Equal(t, []string{"test", "sync"}, relay.calls)
	})

	t.Run("relay failure is fatal without fallback", func(t *testing.T) {
		relay := &stubRelay{testErr: &integration.ProxyError{Operation: "test", StatusCode: 401, Message: "invalid proxy api key"}}
		fake := naverfake.New()
		defer fake.Close()

		o := NewOrchestrator(DefaultConfig(), newMemoryOrderRepository(),
			WithRelay(relay), WithFeed(newNaverFeed(t, fake)))
		result, err := o.Sync(context.Background(), naverRequest(fake.ClientID))
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "invalid proxy api key")
		assert.Equal(t, []string{"test"}, relay.calls)
		assert.Zero(t, fake.TokenCalls())
	})

	t.Run("only naver is relayed", func(t *testing.T) {
		o := NewOrchestrator(DefaultConfig(), newMemoryOrderRepository(), WithRelay(&stubRelay{}))
		req := naverRequest("client")
		req.Channel = integration.ChannelCafe24
		_, err := o.Start(context.Background(), req)
		assert.ErrorIs(t, err, integration.ErrChannelNotConfigured)
		assert.ErrorIs(t, err, integration.ErrRelayUnsupported)
	})
}

func TestOrchestrator_TestConnection(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()
	o := NewOrchestrator(DefaultConfig(), newMemoryOrderRepository(), WithFeed(newNaverFeed(t, fake)))
	ctx := context.Background()

	require.NoError(t, o.TestConnection(ctx, integration.ChannelNaver,
		integration.Credential{ClientID: fake.ClientID, ClientSecret: testSecret}))
	assert.Equal(t, 1, fake.TokenCalls())
	assert.Empty(t, fake.PageCursors())

	err := o.TestConnection(ctx, integration.ChannelNaver,
		integration.Credential{ClientID: "wrong", ClientSecret: testSecret})
	assert.ErrorIs(t, err, integration.ErrAuthentication)

	err = o.TestConnection(ctx, integration.ChannelCafe24,
		integration.Credential{ClientID: "x", ClientSecret: "y"})
	assert.ErrorIs(t, err, integration.ErrChannelNotConfigured)
}

func TestOrchestrator_RecentRuns(t *testing.T) {
	feed := &scriptedFeed{channel: integration.ChannelNaver, pages: [][]integration.OrderIdentifier{identifiers([]string{"p1"})}}
	runLog := newMemoryRunLog()
	o := NewOrchestrator(DefaultConfig(), newMemoryOrderRepository(), WithFeed(feed), WithRunLog(runLog))

	result, err := o.Sync(context.Background(), naverRequest("client"))
	require.NoError(t, err)

	runs, err := o.RecentRuns(context.Background(), integration.ChannelNaver, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, result.RunID, runs[0].ID.String())
	assert.Equal(t, integration.SyncRunStatusSucceeded, runs[0].Status)
	assert.Equal(t, 1, runs[0].Created)

	empty := NewOrchestrator(DefaultConfig(), newMemoryOrderRepository())
	runs, err = empty.RecentRuns(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
