package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/membership/internal/billing"
	"github.com/smallbiznis/membership/internal/clock"
	otpdomain "github.com/smallbiznis/membership/internal/otp/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobOtpCleanup         = "otp_cleanup"
	JobOutboxProvisioning = "outbox_provisioning"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// OtpCleaner removes OTP records past their retention.
type OtpCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// OutboxProcessor drains pending outbox events.
type OutboxProcessor interface {
	ProcessPending(ctx context.Context) (int, error)
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	OtpSvc      otpdomain.Service
	Provisioner *billing.Provisioner `optional:"true"`
	Config      Config               `optional:"true"`
}

// Scheduler runs the maintenance jobs once per invocation. There is no
// in-process loop; an external cron drives it.
type Scheduler struct {
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	otp         OtpCleaner
	provisioner OutboxProcessor
}

func New(p Params) (*Scheduler, error) {
	var provisioner OutboxProcessor
	if p.Provisioner != nil {
		provisioner = p.Provisioner
	}
	return newScheduler(p.Log, p.Clock, p.GenID, p.Config, p.OtpSvc, provisioner)
}

func newScheduler(log *zap.Logger, clk clock.Clock, genID *snowflake.Node, cfg Config, otp OtpCleaner, provisioner OutboxProcessor) (*Scheduler, error) {
	if log == nil || clk == nil || genID == nil || otp == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:         log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         cfg.withDefaults(),
		genID:       genID,
		clock:       clk,
		otp:         otp,
		provisioner: provisioner,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name)
	s.logJobStart(ctx, run)
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)

	err := fn(ctx, run)
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// deadline is a soft timeout: the next run picks up the remainder
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled job and joins their errors.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context, *jobRun) error
	}{
		{JobOtpCleanup, s.isJobEnabled(JobOtpCleanup), s.OtpCleanupJob},
		{JobOutboxProvisioning, s.provisioner != nil && s.isJobEnabled(JobOutboxProvisioning), s.OutboxProvisioningJob},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
		}
	}

	return err
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) OtpCleanupJob(ctx context.Context, run *jobRun) error {
	deleted, err := s.otp.Cleanup(ctx)
	run.AddProcessed(int(deleted))
	return err
}

func (s *Scheduler) OutboxProvisioningJob(ctx context.Context, run *jobRun) error {
	processed, err := s.provisioner.ProcessPending(ctx)
	run.AddProcessed(processed)
	return err
}
