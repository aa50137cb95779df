package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"Cliente":              "cliente",
		"  CLIENTE  ":          "cliente",
		"Cliente Proprietário": "cliente_proprietario",
		"Nº  Instalação":       "n_instalacao",
		"Consumo (MWh)":        "consumo_mwh",
		"Mês de Referência":    "mes_de_referencia",
		"Total a Faturar (R$)": "total_a_faturar_r",
		"___client___":         "client",
		"":                     "",
		"***":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeHeader(in), "input %q", in)
	}
}

func TestEnergyResolverAliases(t *testing.T) {
	r := NewEnergyResolver()

	assert.Equal(t, FieldClient, r.Resolve("Cliente"))
	assert.Equal(t, FieldClient, r.Resolve("CLIENTE "))
	assert.Equal(t, FieldReferenceDate, r.Resolve("Data Base"))
	assert.Equal(t, FieldMeter, r.Resolve("Nº Instalação"))
	assert.Equal(t, FieldConsumption, r.Resolve("Consumo (kWh)"))
	assert.Equal(t, FieldConsumption, r.Resolve("Consumo (MWh)"))
	assert.Equal(t, FieldProinfa, r.Resolve("PROINFA"))
	assert.Equal(t, FieldToBill, r.Resolve("Total a Faturar"))
	assert.Equal(t, FieldCharges, r.Resolve("Encargos"))
	assert.Equal(t, FieldEmail, r.Resolve("E-mail"))
}

func TestEnergyResolverHeuristics(t *testing.T) {
	r := NewEnergyResolver()

	// Not in the alias table, matched by substring.
	assert.Equal(t, FieldClient, r.Resolve("cliente_codigo"))
	assert.Equal(t, FieldProinfa, r.Resolve("Valor Proinfa 2024"))
	assert.Equal(t, FieldSupplier, r.Resolve("Nome do Fornecedor"))
	assert.Equal(t, FieldMaximum, r.Resolve("Demanda Máxima"))
}

func TestResolverDropsUnknownHeaders(t *testing.T) {
	r := NewEnergyResolver()

	assert.Equal(t, "", r.Resolve("observacoes_internas"))
	assert.Equal(t, "", r.Resolve(""))
	assert.Equal(t, "", r.Resolve("***"))
}

func TestScdeResolver(t *testing.T) {
	r := NewScdeResolver()

	assert.Equal(t, FieldAgent, r.Resolve("Agente"))
	assert.Equal(t, FieldGroup, r.Resolve("Ponto de Grupo"))
	assert.Equal(t, FieldReferenceMonth, r.Resolve("Mês de Referência"))
	assert.Equal(t, FieldActiveCKwh, r.Resolve("Ativa C (kWh)"))
	assert.Equal(t, FieldQuality, r.Resolve("Qualidade"))
	assert.Equal(t, FieldSource, r.Resolve("Fonte"))
}
