package forecast

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/products"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const entityType = "forecast"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filters ListFilters) ([]Forecast, int, error)
	Get(ctx context.Context, id int64) (Forecast, error)
}

// ProductLookup resolves products within the caller's tenant.
type ProductLookup interface {
	Get(ctx context.Context, id int64) (products.Product, error)
}

// AuditPort receives audit entries.
type AuditPort interface {
	Log(ctx context.Context, entry audit.Entry)
}

// Service manages demand forecasts.
type Service struct {
	repo     RepositoryPort
	products ProductLookup
	audit    AuditPort
}

// NewService constructs the forecast service.
func NewService(repo RepositoryPort, products ProductLookup, audit AuditPort) *Service {
	return &Service{repo: repo, products: products, audit: audit}
}

// Create stores a manual forecast from explicit period lines.
func (s *Service) Create(ctx context.Context, in CreateInput) (Forecast, error) {
	if len(in.Lines) == 0 {
		return Forecast{}, shared.Invalid("at least one line required")
	}
	lines := make([]Line, 0, len(in.Lines))
	for i, l := range in.Lines {
		if l.PeriodStart.IsZero() {
			return Forecast{}, shared.Invalid("line %d: period start required", i+1)
		}
		if l.ForecastQty.IsNegative() {
			return Forecast{}, shared.Invalid("line %d: forecast quantity must not be negative", i+1)
		}
		lines = append(lines, Line{LineNo: i + 1, PeriodStart: l.PeriodStart, ForecastQty: l.ForecastQty})
	}
	f := Forecast{
		ProductID: in.ProductID,
		Method:    MethodManual,
		Horizon:   len(lines),
		Notes:     in.Notes,
		Lines:     lines,
	}
	return s.store(ctx, f)
}

// Generate projects a forecast with the requested method.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (Forecast, error) {
	if in.Horizon <= 0 {
		return Forecast{}, shared.Invalid("horizon must be positive")
	}
	if in.StartPeriod.IsZero() {
		return Forecast{}, shared.Invalid("start period required")
	}
	if err := checkNonNegative("history", in.History); err != nil {
		return Forecast{}, err
	}
	f := Forecast{ProductID: in.ProductID, Method: in.Method, Horizon: in.Horizon, Notes: in.Notes}

	var qty []decimal.Decimal
	switch in.Method {
	case MethodManual:
		if len(in.Quantities) != in.Horizon {
			return Forecast{}, shared.Invalid("manual forecast needs %d quantities, got %d", in.Horizon, len(in.Quantities))
		}
		if err := checkNonNegative("quantities", in.Quantities); err != nil {
			return Forecast{}, err
		}
		qty = in.Quantities
	case MethodMovingAverage:
		window := in.Window
		if window == 0 {
			window = DefaultWindow
		}
		level, err := MovingAverage(in.History, window)
		if err != nil {
			return Forecast{}, err
		}
		f.WindowSize = &window
		qty = repeat(level, in.Horizon)
	case MethodExponentialSmoothing:
		if in.Alpha == nil {
			return Forecast{}, shared.Invalid("alpha required for exponential smoothing")
		}
		level, err := ExponentialSmoothing(in.History, *in.Alpha)
		if err != nil {
			return Forecast{}, err
		}
		alpha := *in.Alpha
		f.Alpha = &alpha
		qty = repeat(level, in.Horizon)
	default:
		return Forecast{}, shared.Invalid("unknown method %q", in.Method)
	}
	f.Lines = monthlyLines(in.StartPeriod, qty)
	return s.store(ctx, f)
}

func (s *Service) store(ctx context.Context, f Forecast) (Forecast, error) {
	if _, err := s.products.Get(ctx, f.ProductID); err != nil {
		return Forecast{}, err
	}
	f.Status = StatusDraft
	if userID := shared.UserFromContext(ctx); userID != 0 {
		f.CreatedBy = &userID
	}
	var created Forecast
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx)
		if err != nil {
			return err
		}
		f.Number = number
		created, err = tx.Insert(ctx, f)
		return err
	})
	if err != nil {
		return Forecast{}, err
	}
	s.recordAudit(ctx, created.ID, audit.ActionCreate, nil, created)
	return created, nil
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Forecast, int, error) {
	filters.Limit = shared.ClampLimit(filters.Limit)
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Forecast, error) {
	return s.repo.Get(ctx, id)
}

// Update changes notes or status.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Forecast, error) {
	var before, after Forecast
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before.Status == StatusArchived {
			return shared.StateError("forecast %s is archived", before.Number)
		}
		next := before
		if in.Status != nil && *in.Status != before.Status {
			if !canTransition(before.Status, *in.Status) {
				return shared.StateError("cannot move forecast from %s to %s", before.Status, *in.Status)
			}
			next.Status = *in.Status
		}
		if in.Notes != nil {
			next.Notes = *in.Notes
		}
		after, err = tx.UpdateHeader(ctx, next)
		if err != nil {
			return err
		}
		after.Lines = before.Lines
		return nil
	})
	if err != nil {
		return Forecast{}, err
	}
	s.recordAudit(ctx, id, audit.ActionUpdate, before, after)
	return after, nil
}

// Delete removes a forecast that is not active.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var before Forecast
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if before.Status == StatusActive {
			return shared.StateError("active forecast %s cannot be deleted", before.Number)
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, id, audit.ActionDelete, before, nil)
	return nil
}

// RecordActual stores the observed quantity of a line and scores it.
func (s *Service) RecordActual(ctx context.Context, forecastID, lineID int64, in ActualInput) (Line, error) {
	if in.ActualQty.IsNegative() {
		return Line{}, shared.Invalid("actual quantity must not be negative")
	}
	var before, after Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		f, err := tx.LoadForUpdate(ctx, forecastID)
		if err != nil {
			return err
		}
		if f.Status == StatusArchived {
			return shared.StateError("forecast %s is archived", f.Number)
		}
		found := false
		for _, l := range f.Lines {
			if l.ID == lineID {
				before, found = l, true
				break
			}
		}
		if !found {
			return shared.NotFound("forecast line", lineID)
		}
		actual := in.ActualQty
		accuracy := Accuracy(before.ForecastQty, actual)
		after = before
		after.ActualQty = &actual
		after.AccuracyPercent = &accuracy
		return tx.UpdateLine(ctx, forecastID, after)
	})
	if err != nil {
		return Line{}, err
	}
	s.recordAudit(ctx, forecastID, audit.ActionUpdate, before, after)
	return after, nil
}

func (s *Service) recordAudit(ctx context.Context, id int64, action audit.Action, oldValue, newValue any) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, audit.Event(entityType, id, action, oldValue, newValue))
}
