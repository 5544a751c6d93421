package invoice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/odyssey-erp/invoicing/internal/shared"
)

// Repository persists invoices.
type Repository interface {
	NextNumber(ctx context.Context) (string, error)
	Load(ctx context.Context, number string) (Record, error)
	// Save writes rec. prevNumber is the number the document was stored
	// under, which differs from rec.Number after a renumber.
	Save(ctx context.Context, prevNumber string, rec Record) error
	Delete(ctx context.Context, number string) error
	List(ctx context.Context, filter ListFilter) ([]ListItem, error)
	SetFlags(ctx context.Context, number string, posted, void, printed bool) error
}

// Queue hands post and void requests to background workers.
type Queue interface {
	EnqueuePost(ctx context.Context, number string) error
	EnqueueVoid(ctx context.Context, number string) error
}

// Auditor records document actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Repo     Repository
	Actions  Actions
	Queue    Queue
	Audit    Auditor
	Services Services
	Settings Settings
	Logger   zerolog.Logger
}

// Service keeps live editing sessions keyed by invoice number.
type Service struct {
	repo     Repository
	actions  Actions
	queue    Queue
	audit    Auditor
	svc      Services
	settings Settings
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Invoice
}

// ActionResult reports how a post or void request was handled.
type ActionResult struct {
	Number string `json:"number"`
	Queued bool   `json:"queued"`
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:     cfg.Repo,
		actions:  cfg.Actions,
		queue:    cfg.Queue,
		audit:    cfg.Audit,
		svc:      cfg.Services,
		settings: cfg.Settings,
		logger:   cfg.Logger.With().Str("component", "invoice.service").Logger(),
		sessions: make(map[string]*Invoice),
	}
}

// ============================================================================
// SESSIONS
// ============================================================================

// Create starts a new invoice with the next document number.
func (s *Service) Create(ctx context.Context) (*Invoice, error) {
	number, err := s.repo.NextNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("next invoice number: %w", err)
	}
	inv := New(number, s.svc, s.settings)
	s.mu.Lock()
	s.sessions[number] = inv
	s.mu.Unlock()
	s.logger.Debug().Str("invoice", number).Msg("session created")
	return inv, nil
}

// Open loads a stored invoice into an editing session, reusing a live one.
func (s *Service) Open(ctx context.Context, number string) (*Invoice, error) {
	if inv, err := s.Get(number); err == nil {
		return inv, nil
	}
	rec, err := s.repo.Load(ctx, number)
	if err != nil {
		return nil, err
	}
	inv := Restore(rec, s.svc, s.settings)

	s.mu.Lock()
	defer s.mu.Unlock()
	if live, ok := s.sessions[number]; ok {
		inv.Close()
		return live, nil
	}
	s.sessions[number] = inv
	return inv, nil
}

// Get returns the live session for number.
func (s *Service) Get(number string) (*Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.sessions[number]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, number)
	}
	return inv, nil
}

// Save waits for the document to settle, validates it and persists it.
func (s *Service) Save(ctx context.Context, number string) (View, error) {
	inv, err := s.Get(number)
	if err != nil {
		return View{}, err
	}
	if err := inv.Wait(ctx); err != nil {
		return View{}, fmt.Errorf("%w: %v", ErrNotSettled, err)
	}
	rec, err := inv.beginSave()
	if err != nil {
		return View{}, err
	}
	err = s.repo.Save(ctx, number, rec)
	inv.endSave(err)
	if err != nil {
		s.logger.Error().Err(err).Str("invoice", number).Msg("save invoice")
		return View{}, err
	}

	if rec.Number != number {
		s.mu.Lock()
		delete(s.sessions, number)
		s.sessions[rec.Number] = inv
		s.mu.Unlock()
	}
	s.logger.Info().Str("invoice", rec.Number).Msg("invoice saved")
	return inv.View(), nil
}

// Discard drops the editing session without saving.
func (s *Service) Discard(number string) error {
	s.mu.Lock()
	inv, ok := s.sessions[number]
	delete(s.sessions, number)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, number)
	}
	inv.Close()
	return nil
}

// Delete removes a stored invoice. Posted invoices cannot be deleted.
func (s *Service) Delete(ctx context.Context, number string, p Privileges) error {
	rec, err := s.repo.Load(ctx, number)
	if err != nil {
		return err
	}
	item := rec.ListItem()
	if item.IsPosted {
		return ErrPosted
	}
	if !item.CouldDestroy(p) {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, number); err != nil {
		return err
	}
	_ = s.Discard(number)
	s.logger.Info().Str("invoice", number).Msg("invoice deleted")
	s.record(ctx, shared.AuditInvoiceDelete, number)
	return nil
}

// List returns stored invoices.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]ListItem, error) {
	return s.repo.List(ctx, filter)
}

// ============================================================================
// ACTIONS
// ============================================================================

// Post posts a stored invoice, through the queue when one is configured.
func (s *Service) Post(ctx context.Context, number string, p Privileges) (ActionResult, error) {
	item, err := s.listItem(ctx, number)
	if err != nil {
		return ActionResult{}, err
	}
	if !item.CanPost(p) {
		if item.IsPosted {
			return ActionResult{}, ErrPosted
		}
		return ActionResult{}, ErrForbidden
	}
	if s.queue != nil {
		if err := s.queue.EnqueuePost(ctx, number); err != nil {
			return ActionResult{}, fmt.Errorf("enqueue post: %w", err)
		}
		return ActionResult{Number: number, Queued: true}, nil
	}
	if err := s.ExecutePost(ctx, number); err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Number: number}, nil
}

// Void voids a posted invoice, through the queue when one is configured.
func (s *Service) Void(ctx context.Context, number string, p Privileges) (ActionResult, error) {
	item, err := s.listItem(ctx, number)
	if err != nil {
		return ActionResult{}, err
	}
	if !item.CanVoid(p) {
		return ActionResult{}, ErrForbidden
	}
	if s.queue != nil {
		if err := s.queue.EnqueueVoid(ctx, number); err != nil {
			return ActionResult{}, fmt.Errorf("enqueue void: %w", err)
		}
		return ActionResult{Number: number, Queued: true}, nil
	}
	if err := s.ExecuteVoid(ctx, number); err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Number: number}, nil
}

// Print checks the print privilege, logs the request and audits it. The
// stored invoice is left unchanged.
func (s *Service) Print(ctx context.Context, number string, p Privileges) error {
	item, err := s.listItem(ctx, number)
	if err != nil {
		return err
	}
	if !item.CanPrint(p) {
		return ErrForbidden
	}
	item.DoPrint(s.logger)
	s.record(ctx, shared.AuditInvoicePrint, number)
	return nil
}

// ExecutePost dispatches the post action and records the result. Workers call
// it directly; privileges were checked when the task was enqueued.
func (s *Service) ExecutePost(ctx context.Context, number string) error {
	item, err := s.listItem(ctx, number)
	if err != nil {
		return err
	}
	if item.IsPosted {
		return ErrPosted
	}
	if err := item.DoPost(ctx, s.actions); err != nil {
		return fmt.Errorf("post invoice %s: %w", number, err)
	}
	s.logger.Info().Str("invoice", number).Msg("invoice posted")
	if err := s.setFlags(ctx, number, true, item.IsVoid, item.IsPrinted); err != nil {
		return err
	}
	s.record(ctx, shared.AuditInvoicePost, number)
	return nil
}

// ExecuteVoid dispatches the void action and records the result.
func (s *Service) ExecuteVoid(ctx context.Context, number string) error {
	item, err := s.listItem(ctx, number)
	if err != nil {
		return err
	}
	if !item.IsPosted {
		return fmt.Errorf("void invoice %s: %w", number, ErrNotPosted)
	}
	if err := item.DoVoid(ctx, s.actions); err != nil {
		return fmt.Errorf("void invoice %s: %w", number, err)
	}
	s.logger.Info().Str("invoice", number).Msg("invoice voided")
	if err := s.setFlags(ctx, number, item.IsPosted, true, item.IsPrinted); err != nil {
		return err
	}
	s.record(ctx, shared.AuditInvoiceVoid, number)
	return nil
}

func (s *Service) listItem(ctx context.Context, number string) (ListItem, error) {
	rec, err := s.repo.Load(ctx, number)
	if err != nil {
		return ListItem{}, err
	}
	return rec.ListItem(), nil
}

func (s *Service) setFlags(ctx context.Context, number string, posted, void, printed bool) error {
	if err := s.repo.SetFlags(ctx, number, posted, void, printed); err != nil {
		return err
	}
	if inv, err := s.Get(number); err == nil {
		inv.applyFlags(posted, void, printed)
	} else if !errors.Is(err, ErrUnknownSession) {
		return err
	}
	return nil
}

// record writes an audit entry. Failures are logged, never returned.
func (s *Service) record(ctx context.Context, action, number string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "invoice",
		EntityID: number,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("invoice", number).Str("action", action).Msg("audit record")
	}
}
