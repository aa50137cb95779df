package spreadsheet

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical field names emitted by the header resolver. Row parsers only ever
// see these; raw spreadsheet headers never leak past this package.
const (
	FieldClient        = "client"
	FieldReferenceDate = "reference_date"
	FieldPrice         = "price"
	FieldAdjusted      = "adjusted"
	FieldSupplier      = "supplier"
	FieldMeter         = "meter"
	FieldConsumption   = "consumption"
	FieldMeasurement   = "measurement"
	FieldProinfa       = "proinfa"
	FieldContract      = "contract"
	FieldMinimum       = "minimum"
	FieldMaximum       = "maximum"
	FieldToBill        = "to_bill"
	FieldCp            = "cp"
	FieldCharges       = "charges"
	FieldEmail         = "email"
	FieldStatus        = "status"

	FieldAgent          = "agent"
	FieldGroup          = "group"
	FieldReferenceMonth = "reference_month"
	FieldActiveCKwh     = "active_c_kwh"
	FieldQuality        = "quality"
	FieldSource         = "source"
)

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeHeader folds a raw header cell into the lookup form: accents
// stripped, lowercased, non-alphanumeric runs collapsed to a single
// underscore, leading/trailing underscores trimmed.
func NormalizeHeader(header string) string {
	stripped, _, err := transform.String(accentStripper, header)
	if err != nil {
		stripped = header
	}

	var b strings.Builder
	b.Grow(len(stripped))
	lastUnderscore := true // swallow leading separators
	for _, r := range strings.ToLower(stripped) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimRight(b.String(), "_")
}

type heuristic struct {
	contains []string
	field    string
}

// Resolver maps normalized header text to canonical field names. Exact
// aliases win over substring heuristics; heuristics are tried in order and
// the first match wins. Unrecognized headers resolve to "" and the column is
// dropped silently.
type Resolver struct {
	aliases    map[string]string
	heuristics []heuristic
}

// Resolve maps a raw header to its canonical field name, or "" when the
// header is empty or unrecognized.
func (r *Resolver) Resolve(header string) string {
	key := NormalizeHeader(header)
	if key == "" {
		return ""
	}
	if field, ok := r.aliases[key]; ok {
		return field
	}
	for _, h := range r.heuristics {
		for _, needle := range h.contains {
			if strings.Contains(key, needle) {
				return h.field
			}
		}
	}
	return ""
}

// NewEnergyResolver builds the rule set for energy-balance sheets.
func NewEnergyResolver() *Resolver {
	return &Resolver{
		aliases: map[string]string{
			"clients":              FieldClient,
			"client":               FieldClient,
			"cliente":              FieldClient,
			"clientes":             FieldClient,
			"cliente_nome":         FieldClient,
			"nome":                 FieldClient,
			"cliente_proprietario": FieldClient,
			"reference_date":       FieldReferenceDate,
			"data_base":            FieldReferenceDate,
			"referencia":           FieldReferenceDate,
			"reference":            FieldReferenceDate,
			"competencia":          FieldReferenceDate,
			"emissao":              FieldReferenceDate,
			"price":                FieldPrice,
			"preco":                FieldPrice,
			"valor":                FieldPrice,
			"price_unit":           FieldPrice,
			"unit_price":           FieldPrice,
			"adjusted":             FieldAdjusted,
			"ajustado":             FieldAdjusted,
			"ajuste":               FieldAdjusted,
			"reajuste":             FieldAdjusted,
			"supplier":             FieldSupplier,
			"fornecedor":           FieldSupplier,
			"meter":                FieldMeter,
			"medidor":              FieldMeter,
			"numero_medidor":       FieldMeter,
			"numero_instalacao":    FieldMeter,
			"n_instalacao":         FieldMeter,
			"instalacao":           FieldMeter,
			"consumption":          FieldConsumption,
			"consumo":              FieldConsumption,
			"consumo_kwh":          FieldConsumption,
			"consumo_mwh":          FieldConsumption,
			"volume":               FieldConsumption,
			"volume_kwh":           FieldConsumption,
			"volume_mwh":           FieldConsumption,
			"measurement":          FieldMeasurement,
			"unidade":              FieldMeasurement,
			"measurement_unit":     FieldMeasurement,
			"unidade_medida":       FieldMeasurement,
			"proinfa":              FieldProinfa,
			"contract":             FieldContract,
			"contrato":             FieldContract,
			"minimum":              FieldMinimum,
			"minimo":               FieldMinimum,
			"maximum":              FieldMaximum,
			"maximo":               FieldMaximum,
			"to_bill":              FieldToBill,
			"total_faturar":        FieldToBill,
			"valor_total":          FieldToBill,
			"a_faturar":            FieldToBill,
			"faturar":              FieldToBill,
			"cp":                   FieldCp,
			"cp_codigo":            FieldCp,
			"charges":              FieldCharges,
			"encargos":             FieldCharges,
			"charges_json":         FieldCharges,
			"email":                FieldEmail,
			"e_mail":               FieldEmail,
			"status":               FieldStatus,
			"situacao":             FieldStatus,
		},
		heuristics: []heuristic{
			{contains: []string{"proinfa"}, field: FieldProinfa},
			{contains: []string{"encargo", "charge"}, field: FieldCharges},
			{contains: []string{"fatur", "total"}, field: FieldToBill},
			{contains: []string{"consumo", "consumption"}, field: FieldConsumption},
			{contains: []string{"medidor", "instalacao", "meter"}, field: FieldMeter},
			{contains: []string{"fornecedor", "supplier"}, field: FieldSupplier},
			{contains: []string{"unidade", "medida", "unit"}, field: FieldMeasurement},
			{contains: []string{"cliente", "client", "nome"}, field: FieldClient},
			{contains: []string{"minim"}, field: FieldMinimum},
			{contains: []string{"maxim"}, field: FieldMaximum},
			{contains: []string{"contrat"}, field: FieldContract},
			{contains: []string{"preco", "price"}, field: FieldPrice},
			{contains: []string{"data", "referencia", "competencia", "emissao"}, field: FieldReferenceDate},
			{contains: []string{"mail"}, field: FieldEmail},
		},
	}
}

// NewScdeResolver builds the rule set for SCDE metering sheets.
func NewScdeResolver() *Resolver {
	return &Resolver{
		aliases: map[string]string{
			"agent":           FieldAgent,
			"agente":          FieldAgent,
			"empresa":         FieldAgent,
			"cliente":         FieldAgent,
			"group_point":     FieldGroup,
			"ponto":           FieldGroup,
			"ponto_grupo":     FieldGroup,
			"group":           FieldGroup,
			"grupo":           FieldGroup,
			"reference_month": FieldReferenceMonth,
			"referencia":      FieldReferenceMonth,
			"mes_referencia":  FieldReferenceMonth,
			"mes":             FieldReferenceMonth,
			"active_c_kwh":    FieldActiveCKwh,
			"ativa_c_kwh":     FieldActiveCKwh,
			"consumo_ativo":   FieldActiveCKwh,
			"consumo_kwh":     FieldActiveCKwh,
			"quality":         FieldQuality,
			"qualidade":       FieldQuality,
			"status_medicao":  FieldQuality,
			"status":          FieldQuality,
			"source":          FieldSource,
			"fonte":           FieldSource,
			"origem":          FieldSource,
		},
		heuristics: []heuristic{
			{contains: []string{"agente", "empresa", "agent"}, field: FieldAgent},
			{contains: []string{"ponto", "grupo", "group"}, field: FieldGroup},
			{contains: []string{"mes", "referencia", "month"}, field: FieldReferenceMonth},
			{contains: []string{"ativa", "consumo", "kwh"}, field: FieldActiveCKwh},
			{contains: []string{"qualid", "status"}, field: FieldQuality},
			{contains: []string{"fonte", "origem", "source"}, field: FieldSource},
		},
	}
}
