package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enerflow/reconciler/internal/calc"
	"github.com/enerflow/reconciler/internal/domain"
	"github.com/enerflow/reconciler/internal/repository"
)

// codeAttempts caps the random contract-code generation loop.
const codeAttempts = 50

// ErrCodeExhausted means no free contract code was found after codeAttempts
// draws. The code space is effectively full for the current year.
var ErrCodeExhausted = errors.New("contract code space exhausted")

// ContractService owns contract writes. Every mutation that can change a
// derived field re-runs the calculator over the contract's group.
type ContractService struct {
	db     *sql.DB
	bounds calc.BoundsStrategy
	recalc *Recalculator
	log    *zap.SugaredLogger
}

func NewContractService(db *sql.DB, bounds calc.BoundsStrategy, recalc *Recalculator, log *zap.SugaredLogger) *ContractService {
	return &ContractService{db: db, bounds: bounds, recalc: recalc, log: log}
}

// ContractInput carries a create or partial-update payload. Nil pointers mean
// "leave unchanged" on update and "absent" on create.
type ContractInput struct {
	ContractCode       string
	ClientName         string
	GroupName          *string
	Supplier           *string
	Email              *string
	ContractedVolume   *decimal.Decimal
	LowerLimitPercent  *decimal.Decimal
	UpperLimitPercent  *decimal.Decimal
	FlexibilityPercent *decimal.Decimal
	MinDemand          *decimal.Decimal
	MaxDemand          *decimal.Decimal
	AveragePrice       *decimal.Decimal
	Proinfa            *decimal.Decimal
	Status             *string
	StartDate          *time.Time
	EndDate            *time.Time
	ComplianceOverall  *bool
	ComplianceNF       *bool
	ComplianceInvoice  *bool
}

// Create inserts a contract, resolving the client lazily and generating a
// unique contract code when none was supplied. Demand bounds not given
// explicitly are computed from the contracted volume and limit percentages.
func (s *ContractService) Create(ctx context.Context, in ContractInput) (*domain.Contract, error) {
	if in.ClientName == "" {
		return nil, errors.New("client name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin contract tx: %w", err)
	}
	defer tx.Rollback()

	client, err := repository.NewClientRepo(tx).GetOrCreate(ctx, in.ClientName)
	if err != nil {
		return nil, err
	}

	contracts := repository.NewContractRepo(tx)
	code := in.ContractCode
	if code == "" {
		code, err = s.freeCode(ctx, contracts)
		if err != nil {
			return nil, err
		}
	} else {
		exists, err := contracts.CodeExists(ctx, code)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("contract code %q already in use", code)
		}
	}

	c := &domain.Contract{
		ContractCode: code,
		ClientID:     client.ClientID,
		ClientName:   client.Name,
	}
	applyInput(c, in)
	s.applyBounds(c)

	id, err := contracts.Insert(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit contract tx: %w", err)
	}
	s.log.Infow("contract created", "id", id, "code", code, "client", client.Name)
	return c, nil
}

// Update patches a contract and, when a term feeding the derived calculator
// changed, recalculates every energy balance in the contract's group.
func (s *ContractService) Update(ctx context.Context, id int64, in ContractInput) (*domain.Contract, error) {
	contracts := repository.NewContractRepo(s.db)
	c, err := contracts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, sql.ErrNoRows
	}

	before := *c
	applyInput(c, in)
	if boundsInputChanged(&before, c) && in.MinDemand == nil && in.MaxDemand == nil {
		c.MinDemand = nil
		c.MaxDemand = nil
		s.applyBounds(c)
	}

	if err := contracts.Update(ctx, c); err != nil {
		return nil, err
	}

	if derivedInputChanged(&before, c) && c.GroupName != "" {
		if _, err := s.recalc.RecalcContractGroup(ctx, c.GroupName); err != nil {
			return nil, fmt.Errorf("recalculate group %q: %w", c.GroupName, err)
		}
	}
	return c, nil
}

func (s *ContractService) Get(ctx context.Context, id int64) (*domain.Contract, error) {
	return repository.NewContractRepo(s.db).GetByID(ctx, id)
}

func (s *ContractService) List(ctx context.Context) ([]domain.Contract, error) {
	return repository.NewContractRepo(s.db).List(ctx)
}

func (s *ContractService) Delete(ctx context.Context, id int64) error {
	return repository.NewContractRepo(s.db).Delete(ctx, id)
}

// freeCode draws random year-prefixed codes until one is unused.
func (s *ContractService) freeCode(ctx context.Context, contracts *repository.ContractRepo) (string, error) {
	year := time.Now().UTC().Year()
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code := fmt.Sprintf("CT-%d-%04d", year, rand.Intn(10000))
		exists, err := contracts.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}

// applyBounds fills missing demand bounds from the contract's own terms.
func (s *ContractService) applyBounds(c *domain.Contract) {
	min, max := calc.DemandBounds(c.ContractedVolume, c.LowerLimitPercent,
		c.UpperLimitPercent, c.FlexibilityPercent, s.bounds)
	if c.MinDemand == nil {
		c.MinDemand = min
	}
	if c.MaxDemand == nil {
		c.MaxDemand = max
	}
}

func applyInput(c *domain.Contract, in ContractInput) {
	if in.GroupName != nil {
		c.GroupName = *in.GroupName
	}
	if in.Supplier != nil {
		c.Supplier = *in.Supplier
	}
	if in.Email != nil {
		c.Email = *in.Email
	}
	if in.ContractedVolume != nil {
		c.ContractedVolume = in.ContractedVolume
	}
	if in.LowerLimitPercent != nil {
		c.LowerLimitPercent = in.LowerLimitPercent
	}
	if in.UpperLimitPercent != nil {
		c.UpperLimitPercent = in.UpperLimitPercent
	}
	if in.FlexibilityPercent != nil {
		c.FlexibilityPercent = in.FlexibilityPercent
	}
	if in.MinDemand != nil {
		c.MinDemand = in.MinDemand
	}
	if in.MaxDemand != nil {
		c.MaxDemand = in.MaxDemand
	}
	if in.AveragePrice != nil {
		c.AveragePrice = in.AveragePrice
	}
	if in.Proinfa != nil {
		c.Proinfa = in.Proinfa
	}
	if in.Status != nil {
		c.Status = *in.Status
	}
	if in.StartDate != nil {
		c.StartDate = in.StartDate
	}
	if in.EndDate != nil {
		c.EndDate = in.EndDate
	}
	if in.ComplianceOverall != nil {
		c.ComplianceOverall = in.ComplianceOverall
	}
	if in.ComplianceNF != nil {
		c.ComplianceNF = in.ComplianceNF
	}
	if in.ComplianceInvoice != nil {
		c.ComplianceInvoice = in.ComplianceInvoice
	}
}

func boundsInputChanged(before, after *domain.Contract) bool {
	return !decEqual(before.ContractedVolume, after.ContractedVolume) ||
		!decEqual(before.LowerLimitPercent, after.LowerLimitPercent) ||
		!decEqual(before.UpperLimitPercent, after.UpperLimitPercent) ||
		!decEqual(before.FlexibilityPercent, after.FlexibilityPercent)
}

func derivedInputChanged(before, after *domain.Contract) bool {
	return boundsInputChanged(before, after) ||
		!decEqual(before.MinDemand, after.MinDemand) ||
		!decEqual(before.MaxDemand, after.MaxDemand) ||
		!decEqual(before.AveragePrice, after.AveragePrice) ||
		!decEqual(before.Proinfa, after.Proinfa) ||
		before.Email != after.Email ||
		before.Supplier != after.Supplier ||
		before.GroupName != after.GroupName
}

func decEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
