// Package calc holds the derived-field calculator. Everything here is pure:
// given the same inputs the same derived fields come out, so any write path
// that changes a contributing field can re-run it and re-persist the result.
package calc

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/enerflow/reconciler/internal/domain"
)

// Classification codes for the purchase decision. CpMustBuy means billable
// energy reached the max demand and the shortfall must be purchased.
const (
	CpMustBuy     = "Compra"
	CpNoShortfall = "Não há."
)

var (
	decimalThousand        = decimal.NewFromInt(1000)
	decimalOneHundredThree = decimal.NewFromInt(103)
	lossRate               = decimal.RequireFromString("0.03")
)

// Inputs collects everything the calculator may consume. Contract and
// ClientEmail are the results of the caller's lookup chain; nil/empty when
// no match was found.
type Inputs struct {
	ConsumptionKwh *decimal.Decimal
	Price          *decimal.Decimal
	AdjustedPrice  *decimal.Decimal
	ExplicitVolume *decimal.Decimal // contract volume supplied in the payload/sheet
	Proinfa        *decimal.Decimal // explicit payload proinfa, nil when absent
	Email          string           // explicit payload email
	Supplier       string
	Contract       *domain.Contract
	ClientEmail    string
	Strategy       BoundsStrategy
}

// Derived is the calculator output. Nil pointers mean "not computable", which
// is distinct from zero.
type Derived struct {
	ConsumptionMwh *decimal.Decimal
	Price          *decimal.Decimal
	Volume         *decimal.Decimal
	Proinfa        decimal.Decimal
	MinDemand      *decimal.Decimal
	MaxDemand      *decimal.Decimal
	Billable       *decimal.Decimal
	Loss           *decimal.Decimal
	Requirement    *decimal.Decimal
	Net            *decimal.Decimal
	CpCode         string
	Email          string
	Supplier       string
	ContractID     *int64
}

// Derive computes all derived fields from the given inputs.
//
// Billable is only computable when there is a contract volume or a proinfa
// contribution from any source; it is consumption×103/100−proinfa in MWh,
// capped at max demand. Loss is a fixed 3% of consumption. Requirement is
// consumption+loss−proinfa. Net is requirement−billable.
func Derive(in Inputs) Derived {
	out := Derived{Supplier: in.Supplier}

	var contractVolume, contractProinfa *decimal.Decimal
	if in.Contract != nil {
		contractVolume = in.Contract.ContractedVolume
		contractProinfa = in.Contract.Proinfa
		id := in.Contract.ID
		out.ContractID = &id
		if out.Supplier == "" {
			out.Supplier = in.Contract.Supplier
		}
	}

	out.Price = in.Price
	if out.Price == nil && in.Contract != nil {
		out.Price = in.Contract.AveragePrice
	}

	// Contract volume snapshot: explicit value wins over the related
	// contract's terms.
	out.Volume = in.ExplicitVolume
	if out.Volume == nil {
		out.Volume = contractVolume
	}

	proinfa := in.Proinfa
	if proinfa == nil {
		proinfa = contractProinfa
	}
	hasProinfa := proinfa != nil
	if proinfa == nil {
		zero := decimal.Zero
		proinfa = &zero
	}
	out.Proinfa = *proinfa

	out.MinDemand, out.MaxDemand = demandBounds(in, contractVolume)

	if in.ConsumptionKwh != nil {
		mwh := in.ConsumptionKwh.Div(decimalThousand)
		out.ConsumptionMwh = &mwh

		loss := mwh.Mul(lossRate)
		out.Loss = &loss

		requirement := mwh.Add(loss).Sub(*proinfa)
		out.Requirement = &requirement

		if out.Volume != nil || hasProinfa {
			billable := mwh.Mul(decimalOneHundredThree).Div(decimalHundred).Sub(*proinfa)
			if out.MaxDemand != nil && billable.GreaterThan(*out.MaxDemand) {
				billable = *out.MaxDemand
			}
			out.Billable = &billable

			net := requirement.Sub(billable)
			out.Net = &net
		}
	}

	if out.MaxDemand != nil && out.Billable != nil {
		if out.Billable.LessThan(*out.MaxDemand) {
			out.CpCode = CpNoShortfall
		} else {
			out.CpCode = CpMustBuy
		}
	}

	out.Email = resolveEmail(in)
	return out
}

// demandBounds resolves [min, max]: a related contract's stored bounds win,
// then bounds computed from its terms, then [0, 2×volume] for an explicit
// volume without a contract.
func demandBounds(in Inputs, contractVolume *decimal.Decimal) (*decimal.Decimal, *decimal.Decimal) {
	if in.Contract != nil {
		volume := contractVolume
		if volume == nil {
			volume = in.ExplicitVolume
		}
		min, max := DemandBounds(volume, in.Contract.LowerLimitPercent,
			in.Contract.UpperLimitPercent, in.Contract.FlexibilityPercent, in.Strategy)
		if in.Contract.MinDemand != nil {
			min = in.Contract.MinDemand
		}
		if in.Contract.MaxDemand != nil {
			max = in.Contract.MaxDemand
		}
		return min, max
	}
	if in.ExplicitVolume != nil {
		return DemandBounds(in.ExplicitVolume, nil, nil, nil, in.Strategy)
	}
	return nil, nil
}

// resolveEmail applies the precedence chain: contract email, then payload
// email, then the client record's email.
func resolveEmail(in Inputs) string {
	if in.Contract != nil {
		if email := strings.TrimSpace(in.Contract.Email); email != "" {
			return email
		}
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		return email
	}
	return strings.TrimSpace(in.ClientEmail)
}
