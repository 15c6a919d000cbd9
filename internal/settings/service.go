package settings

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

// Repository abstracts settings persistence.
type Repository interface {
	List(ctx context.Context) ([]Setting, error)
	Get(ctx context.Context, key string) (Setting, error)
	Upsert(ctx context.Context, changes []Change, at time.Time) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Service reads and updates settings.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	clock  func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, clock: time.Now}
}

// List returns every setting ordered by key.
func (s *Service) List(ctx context.Context) ([]Setting, error) {
	out, err := s.repo.List(ctx)
	if out == nil && err == nil {
		out = []Setting{}
	}
	return out, err
}

// Get returns one setting.
func (s *Service) Get(ctx context.Context, key string) (Setting, error) {
	return s.repo.Get(ctx, strings.ToLower(strings.TrimSpace(key)))
}

// Update applies every change atomically and returns the full list.
func (s *Service) Update(ctx context.Context, input UpdateInput) ([]Setting, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return nil, err
	}
	changes := make([]Change, 0, len(input.Settings))
	seen := make(map[string]bool, len(input.Settings))
	for _, c := range input.Settings {
		c.Key = strings.ToLower(strings.TrimSpace(c.Key))
		c.Value = strings.TrimSpace(c.Value)
		if !keyPattern.MatchString(c.Key) {
			return nil, ledger.Invalid("key", fmt.Sprintf("%q must be lower snake case", c.Key))
		}
		if seen[c.Key] {
			return nil, ledger.Invalid("key", fmt.Sprintf("%q given more than once", c.Key))
		}
		seen[c.Key] = true
		if err := checkValue(c); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	if err := s.repo.Upsert(ctx, changes, s.clock().UTC()); err != nil {
		return nil, err
	}
	if s.audit != nil {
		meta := make(map[string]any, len(changes))
		for _, c := range changes {
			meta[c.Key] = c.Value
		}
		entityID := "bulk"
		if len(changes) == 1 {
			entityID = changes[0].Key
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    input.Actor.Username,
			Action:   "settings:update",
			Entity:   "settings",
			EntityID: entityID,
			Meta:     meta,
		}); err != nil {
			s.logger.Warn("audit settings update", slog.Any("error", err))
		}
	}
	return s.List(ctx)
}

func checkValue(c Change) error {
	switch c.Key {
	case KeyMinStockAlert:
		n, err := strconv.ParseInt(c.Value, 10, 64)
		if err != nil || n < 0 {
			return ledger.Invalid(c.Key, "must be a whole number of zero or more")
		}
	case KeyVATRate:
		d, err := decimal.NewFromString(c.Value)
		if err != nil || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
			return ledger.Invalid(c.Key, "must be a percentage between 0 and 100")
		}
	}
	return nil
}
