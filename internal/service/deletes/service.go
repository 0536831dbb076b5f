package deletes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/animus-labs/cascade/internal/deletespec"
	"github.com/animus-labs/cascade/internal/platform/auditlog"
	"github.com/animus-labs/cascade/internal/platform/metrics"
	"github.com/animus-labs/cascade/internal/platform/objectstore"
	"github.com/animus-labs/cascade/internal/query"
	"github.com/google/uuid"
)

var (
	ErrUnknownSpec = errors.New("unknown delete specification")
	ErrBackup      = errors.New("backup failed")
	ErrInvalid     = errors.New("invalid request")
	errRolledBack  = errors.New("dry run rolled back")
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Tx is the transaction a run executes in. *postgres.Session built over a
// *sql.Tx satisfies it.
type Tx interface {
	query.Session
	auditlog.QueryRower
}

type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type BackupStore interface {
	Put(ctx context.Context, key string, data []byte) (objectstore.Backup, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// AuditFunc records a finished run inside its transaction.
type AuditFunc func(ctx context.Context, tx Tx, event auditlog.DeleteRunEvent) (int64, error)

func InsertAudit(ctx context.Context, tx Tx, event auditlog.DeleteRunEvent) (int64, error) {
	return auditlog.InsertDeleteRun(ctx, tx, event)
}

type Config struct {
	Registry   *deletespec.Registry
	Transactor Transactor
	Backups    BackupStore
	Metrics    *metrics.Collector
	Audit      AuditFunc
	Logger     *slog.Logger

	RunTimeout    time.Duration
	BackupDefault bool
}

type Service struct {
	registry        *deletespec.Registry
	txs             Transactor
	backups         BackupStore
	metrics         *metrics.Collector
	audit           AuditFunc
	logger          *slog.Logger
	runTimeout      time.Duration
	backupByDefault bool

	locks *specLocks
	now   func() time.Time
	newID func() string
}

func New(cfg Config) (*Service, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if !cfg.Registry.Linked() {
		return nil, errors.New("registry is not linked")
	}
	if cfg.Transactor == nil {
		return nil, errors.New("transactor is required")
	}
	if cfg.RunTimeout < 0 {
		return nil, errors.New("run timeout must be >= 0")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	audit := cfg.Audit
	if audit == nil {
		audit = InsertAudit
	}
	return &Service{
		registry:        cfg.Registry,
		txs:             cfg.Transactor,
		backups:         cfg.Backups,
		metrics:         cfg.Metrics,
		audit:           audit,
		logger:          logger,
		runTimeout:      cfg.RunTimeout,
		backupByDefault: cfg.BackupDefault && cfg.Backups != nil,
		locks:           newSpecLocks(),
		now:             func() time.Time { return time.Now().UTC() },
		newID:           func() string { return uuid.NewString() },
	}, nil
}

// SpecInfo describes one registered specification.
type SpecInfo struct {
	Name      string   `json:"name"`
	RootType  string   `json:"root_type"`
	Entries   []string `json:"entries"`
	WalkOrder []string `json:"walk_order"`
	Active    bool     `json:"active"`
}

func (s *Service) Specs() []SpecInfo {
	names := s.registry.Names()
	out := make([]SpecInfo, 0, len(names))
	for _, name := range names {
		spec, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		info := SpecInfo{Name: name, RootType: spec.RootType(), Active: spec.Active()}
		for _, e := range spec.Entries() {
			if e.NestedName() != "" {
				info.Entries = append(info.Entries, e.RelativePath()+" -> "+e.NestedName())
				continue
			}
			info.Entries = append(info.Entries, e.RelativePath())
		}
		for sub := range spec.Walk() {
			info.WalkOrder = append(info.WalkOrder, sub.Name())
		}
		out = append(out, info)
	}
	return out
}

// Actor identifies who asked for a run, for the audit trail.
type Actor struct {
	Subject    string
	RequestID  string
	RemoteAddr string
	UserAgent  string
}

type Request struct {
	Spec    string
	RootID  int64
	Options map[string]string
	// Backup overrides the service default when set.
	Backup *bool
	Actor  Actor
}

type PlanStep struct {
	deletespec.PlannedStep
	Count int `json:"count"`
}

type PlanResult struct {
	Spec   string     `json:"spec"`
	RootID int64      `json:"root_id"`
	Steps  []PlanStep `json:"steps"`
	Total  int        `json:"total"`
}

type Result struct {
	RunID   string                  `json:"run_id"`
	Spec    string                  `json:"spec"`
	RootID  int64                   `json:"root_id"`
	Status  string                  `json:"status"`
	Deleted int64                   `json:"deleted"`
	Steps   []deletespec.StepResult `json:"steps"`
	Backup  *objectstore.Backup     `json:"backup,omitempty"`
	AuditID int64                   `json:"audit_id"`
}

// Plan reports what Execute would delete for req without deleting
// anything. The ids are read in a transaction that is always rolled back.
func (s *Service) Plan(ctx context.Context, req Request) (PlanResult, error) {
	spec, err := s.lookup(req.Spec)
	if err != nil {
		return PlanResult{}, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	release, err := s.locks.acquire(ctx, spec.Name())
	if err != nil {
		return PlanResult{}, err
	}
	defer release()

	var out PlanResult
	err = s.txs.InTx(ctx, func(ctx context.Context, tx Tx) error {
		run, err := spec.Initialize(req.RootID, "", req.Options)
		if err != nil {
			return err
		}
		defer run.Close()

		planned, err := run.Plan()
		if err != nil {
			return err
		}
		snap, err := deletespec.CollectSnapshot(ctx, tx, run)
		if err != nil {
			return err
		}
		counts := make(map[string]int, len(snap.Steps))
		for _, e := range snap.Steps {
			counts[e.Path] = len(e.IDs)
		}
		out = PlanResult{Spec: spec.Name(), RootID: req.RootID, Total: snap.Total()}
		for _, p := range planned {
			out.Steps = append(out.Steps, PlanStep{PlannedStep: p, Count: counts[p.Path]})
		}
		return errRolledBack
	})
	if err != nil && !errors.Is(err, errRolledBack) {
		return PlanResult{}, err
	}
	return out, nil
}

// Execute deletes req.RootID and everything its specification cascades to.
func (s *Service) Execute(ctx context.Context, req Request) (Result, error) {
	spec, err := s.lookup(req.Spec)
	if err != nil {
		return Result{}, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	release, err := s.locks.acquire(ctx, spec.Name())
	if err != nil {
		return Result{}, err
	}
	defer release()

	backup := s.backupByDefault
	if req.Backup != nil {
		backup = *req.Backup
	}
	if backup && s.backups == nil {
		return Result{}, fmt.Errorf("%w: no backup store configured", ErrBackup)
	}

	res := Result{RunID: s.newID(), Spec: spec.Name(), RootID: req.RootID}
	logger := s.logger.With("run_id", res.RunID, "spec", res.Spec, "root_id", res.RootID)
	started := s.now()

	err = s.txs.InTx(ctx, func(ctx context.Context, tx Tx) error {
		run, err := spec.Initialize(req.RootID, "", req.Options)
		if err != nil {
			return err
		}
		defer run.Close()

		snap, err := deletespec.CollectSnapshot(ctx, tx, run)
		if err != nil {
			return err
		}
		if backup {
			b, err := s.upload(ctx, res, snap)
			if err != nil {
				return err
			}
			res.Backup = &b
		}

		for step := 0; step < run.Steps(); step++ {
			stepStart := time.Now()
			sr, err := run.Delete(ctx, tx, step, snap)
			s.metrics.ObserveStep(res.Spec, time.Since(stepStart))
			if err != nil {
				return err
			}
			s.countRows(res.Spec, sr)
			res.Deleted += sr.Deleted
			res.Steps = append(res.Steps, sr)
		}

		res.Status = StatusSucceeded
		id, err := s.audit(ctx, tx, s.auditEvent(req, res, ""))
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		res.AuditID = id
		return nil
	})
	if err != nil {
		s.metrics.ObserveRun(res.Spec, StatusFailed)
		logger.Error("delete run failed", "error", err, "duration_ms", s.now().Sub(started).Milliseconds())
		res.Status = StatusFailed
		res.AuditID = 0
		res.Deleted = 0
		s.auditFailure(ctx, logger, req, res, err)
		return res, err
	}

	s.metrics.ObserveRun(res.Spec, StatusSucceeded)
	logger.Info("delete run succeeded", "deleted", res.Deleted, "duration_ms", s.now().Sub(started).Milliseconds())
	return res, nil
}

// auditFailure records a failed run in a transaction of its own. Unknown
// specs and runs that never acquired their per-name lock are not recorded.
func (s *Service) auditFailure(ctx context.Context, logger *slog.Logger, req Request, res Result, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := s.txs.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := s.audit(ctx, tx, s.auditEvent(req, res, cause.Error()))
		return err
	})
	if err != nil {
		logger.Error("audit failed run", "error", err)
	}
}

// Backup loads the snapshot uploaded by a previous run.
func (s *Service) Backup(ctx context.Context, spec string, rootID int64, runID string) (*deletespec.Snapshot, error) {
	if s.backups == nil {
		return nil, fmt.Errorf("%w: no backup store configured", ErrBackup)
	}
	if _, err := uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("%w: run id %q: %v", ErrInvalid, runID, err)
	}
	raw, err := s.backups.Get(ctx, objectstore.BackupKey(spec, rootID, runID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackup, err)
	}
	snap, err := deletespec.UnmarshalSnapshot(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode snapshot: %v", ErrBackup, err)
	}
	return snap, nil
}

func (s *Service) upload(ctx context.Context, res Result, snap *deletespec.Snapshot) (objectstore.Backup, error) {
	raw, err := snap.Marshal()
	if err != nil {
		return objectstore.Backup{}, fmt.Errorf("%w: encode snapshot: %v", ErrBackup, err)
	}
	b, err := s.backups.Put(ctx, objectstore.BackupKey(res.Spec, res.RootID, res.RunID), raw)
	if err != nil {
		return objectstore.Backup{}, fmt.Errorf("%w: %w", ErrBackup, err)
	}
	return b, nil
}

func (s *Service) countRows(spec string, sr deletespec.StepResult) {
	if len(sr.Substeps) == 0 {
		s.metrics.AddRows(spec, sr.Type, sr.Deleted)
		return
	}
	for _, sub := range sr.Substeps {
		s.countRows(spec, sub)
	}
}

func (s *Service) auditEvent(req Request, res Result, errMsg string) auditlog.DeleteRunEvent {
	event := auditlog.DeleteRunEvent{
		Time:       s.now(),
		Actor:      req.Actor.Subject,
		RequestID:  req.Actor.RequestID,
		RemoteAddr: req.Actor.RemoteAddr,
		UserAgent:  req.Actor.UserAgent,
		RunID:      res.RunID,
		Spec:       res.Spec,
		RootID:     res.RootID,
		Status:     res.Status,
		Deleted:    res.Deleted,
		Options:    maps.Clone(req.Options),
		Steps:      res.Steps,
		Error:      errMsg,
	}
	if event.Actor == "" {
		event.Actor = "anonymous"
	}
	if res.Backup != nil {
		event.Backup = res.Backup
	}
	return event
}

func (s *Service) lookup(name string) (*deletespec.Specification, error) {
	spec, ok := s.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSpec, name)
	}
	return spec, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.runTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.runTimeout)
}
