package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/config"
)

// OrderSyncExecutor executes order sync jobs
type OrderSyncExecutor interface {
	Execute(ctx context.Context, job *OrderSyncJob) error
}

// Syncer runs one sync to completion. *ordersync.Orchestrator satisfies it.
type Syncer interface {
	Sync(ctx context.Context, req *integration.SyncRequest) (*integration.SyncResult, error)
}

// CredentialProvider supplies the stored credential for unattended runs
type CredentialProvider interface {
	Credential(channel integration.ChannelCode) (integration.Credential, error)
}

// StaticCredentials is a CredentialProvider backed by configuration
type StaticCredentials map[integration.ChannelCode]integration.Credential

// CredentialsFromConfig collects the channel credentials present in cfg
func CredentialsFromConfig(cfg *config.Config) StaticCredentials {
	creds := StaticCredentials{}
	if cfg.Naver.HasCredential() {
		creds[integration.ChannelNaver] = integration.Credential{
			ClientID:     cfg.Naver.ClientID,
			ClientSecret: cfg.Naver.ClientSecret,
		}
	}
	return creds
}

// Credential implements CredentialProvider.
func (s StaticCredentials) Credential(channel integration.ChannelCode) (integration.Credential, error) {
	cred, ok := s[channel]
	if !ok {
		return integration.Credential{}, fmt.Errorf("%w: %s", ErrNoCredential, channel)
	}
	return cred, nil
}

// ErrRunFailed wraps the message of a run that ended unsuccessfully
var ErrRunFailed = errors.New("order sync run failed")

// OrchestratorExecutor executes jobs through a Syncer
type OrchestratorExecutor struct {
	syncer      Syncer
	credentials CredentialProvider
	logger      *zap.Logger
}

// NewOrchestratorExecutor creates an executor for scheduled runs
func NewOrchestratorExecutor(syncer Syncer, credentials CredentialProvider, logger *zap.Logger) *OrchestratorExecutor {
	return &OrchestratorExecutor{
		syncer:      syncer,
		credentials: credentials,
		logger:      logger,
	}
}

// Execute runs the job's window and copies the result into the job.
// Errors returned before the run started leave the job untouched.
func (e *OrchestratorExecutor) Execute(ctx context.Context, job *OrderSyncJob) error {
	cred, err := e.credentials.Credential(job.Channel)
	if err != nil {
		return err
	}

	req := &integration.SyncRequest{
		Channel:    job.Channel,
		StartDate:  job.Window.From,
		EndDate:    job.Window.To.AddDate(0, 0, -1),
		Credential: cred,
		Trigger:    job.Trigger,
	}

	result, err := e.syncer.Sync(ctx, req)
	if err != nil {
		return err
	}
	job.Complete(result)

	e.logger.Debug("Scheduled order sync finished",
		zap.String("job_id", job.ID.String()),
		zap.String("run_id", result.RunID),
		zap.String("summary", result.Summary()),
	)

	if !result.Success {
		if result.Err != nil {
			return fmt.Errorf("%w: %w", ErrRunFailed, result.Err)
		}
		return fmt.Errorf("%w: %s", ErrRunFailed, result.Message)
	}
	return nil
}

// isRetryable reports whether a failed job may succeed on a later attempt.
// Request and credential problems need an operator, not a retry.
func isRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, integration.ErrInvalidChannel),
		errors.Is(err, integration.ErrChannelNotConfigured),
		errors.Is(err, integration.ErrMissingCredential),
		errors.Is(err, integration.ErrInvalidDateRange),
		errors.Is(err, integration.ErrAuthentication),
		errors.Is(err, integration.ErrSigning),
		errors.Is(err, integration.ErrSyncCancelled),
		errors.Is(err, ErrNoCredential):
		return false
	default:
		return true
	}
}

var _ OrderSyncExecutor = (*OrchestratorExecutor)(nil)
