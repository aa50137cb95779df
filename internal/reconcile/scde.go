package reconcile

import (
	"context"
	"strings"

	"github.com/enerflow/reconciler/internal/domain"
	"github.com/enerflow/reconciler/internal/ingestion"
	"github.com/enerflow/reconciler/internal/repository"
)

// ScdeOps reconciles parsed SCDE metering rows. The natural key is
// (group, period); rows whose group has no match fall back to
// (client name, period) before a new record is created.
type ScdeOps struct {
	sheet   string
	batchID string
}

func NewScdeOps(sheet, batchID string) *ScdeOps {
	return &ScdeOps{sheet: sheet, batchID: batchID}
}

func (o *ScdeOps) Sheet() string { return o.sheet }

func (o *ScdeOps) RowNumber(row ingestion.ScdeRow) int { return row.RowNumber }

func (o *ScdeOps) Find(ctx context.Context, tx repository.DBTX, row ingestion.ScdeRow) (int64, bool, error) {
	repo := repository.NewScdeRepo(tx)
	if row.GroupPoint != "" {
		existing, err := repo.FindByGroupPeriod(ctx, row.GroupPoint, row.ReferenceMonth)
		if err != nil {
			return 0, false, err
		}
		if existing != nil {
			return existing.RecordID, true, nil
		}
	}
	existing, err := repo.FindByClientPeriod(ctx, row.Agent, row.ReferenceMonth)
	if err != nil {
		return 0, false, err
	}
	if existing == nil {
		return 0, false, nil
	}
	return existing.RecordID, true, nil
}

func (o *ScdeOps) Insert(ctx context.Context, tx repository.DBTX, row ingestion.ScdeRow) error {
	rec, err := o.build(ctx, tx, row)
	if err != nil {
		return err
	}
	_, err = repository.NewScdeRepo(tx).Insert(ctx, rec)
	return err
}

func (o *ScdeOps) Update(ctx context.Context, tx repository.DBTX, id int64, row ingestion.ScdeRow) error {
	rec, err := o.build(ctx, tx, row)
	if err != nil {
		return err
	}
	return repository.NewScdeRepo(tx).Update(ctx, id, rec)
}

// build resolves the client for one row. A contract matching the metering
// group names the client; otherwise the agent cell does, creating the client
// lazily.
func (o *ScdeOps) build(ctx context.Context, tx repository.DBTX, row ingestion.ScdeRow) (*domain.Scde, error) {
	clientName := row.Agent
	clientID := ""

	contract, err := findContract(ctx, repository.NewContractRepo(tx), row.GroupPoint, "")
	if err != nil {
		return nil, err
	}
	if contract != nil {
		clientName = contract.ClientName
		clientID = contract.ClientID
	}
	if clientID == "" {
		client, err := repository.NewClientRepo(tx).GetOrCreate(ctx, clientName)
		if err != nil {
			return nil, err
		}
		clientID = client.ClientID
	}

	group := row.GroupPoint
	if group == "" {
		group = row.Agent
	}

	return &domain.Scde{
		ClientID:      clientID,
		ClientName:    clientName,
		GroupName:     group,
		PeriodRef:     row.ReferenceMonth,
		Consumed:      row.ActiveCKwh,
		Status:        row.Quality,
		Origin:        joinOrigins(row.Source, row.Origin),
		ImportBatchID: o.batchID,
	}, nil
}

// joinOrigins comma-joins the distinct non-empty origin labels in order.
func joinOrigins(origins ...string) string {
	var parts []string
	seen := make(map[string]struct{})
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		parts = append(parts, o)
	}
	return strings.Join(parts, ",")
}
