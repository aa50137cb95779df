package spreadsheet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wb(names ...string) *Workbook {
	w := &Workbook{}
	for _, n := range names {
		w.Sheets = append(w.Sheets, Sheet{Name: n})
	}
	return w
}

func TestMonthToken(t *testing.T) {
	assert.Equal(t, "jul25", MonthToken(time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "jan00", MonthToken(time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "dez99", MonthToken(time.Date(1999, time.December, 31, 0, 0, 0, 0, time.UTC)))
}

func TestDetectOrder(t *testing.T) {
	// Current-period tab wins over everything.
	s, err := Detect(wb("Resumo", "SCDE", "jul25"), "jul25")
	require.NoError(t, err)
	assert.Equal(t, "jul25", s.Name)

	// Then the SCDE tab.
	s, err = Detect(wb("Resumo", "SCDE", "ago24"), "jul25")
	require.NoError(t, err)
	assert.Equal(t, "SCDE", s.Name)

	// Then any month tab.
	s, err = Detect(wb("Resumo", "ago24"), "jul25")
	require.NoError(t, err)
	assert.Equal(t, "ago24", s.Name)

	// Then a tab named nota.
	s, err = Detect(wb("Resumo", "Nota"), "jul25")
	require.NoError(t, err)
	assert.Equal(t, "Nota", s.Name)

	// Finally the first sheet.
	s, err = Detect(wb("Planilha Qualquer", "Outra"), "jul25")
	require.NoError(t, err)
	assert.Equal(t, "Planilha Qualquer", s.Name)
}

func TestDetectEmptyWorkbook(t *testing.T) {
	_, err := Detect(&Workbook{}, "jul25")
	assert.ErrorIs(t, err, ErrEmptyWorkbook)
}

func TestDetectIgnoresSheetNameSpacing(t *testing.T) {
	s, err := Detect(wb("Resumo", " Jul 25 "), "jul25")
	require.NoError(t, err)
	assert.Equal(t, " Jul 25 ", s.Name)
}

func TestFindEnergyAndScdeSheets(t *testing.T) {
	w := wb("SCDE", "jul25", "Nota")

	energy := FindEnergySheet(w, "jul25")
	require.NotNil(t, energy)
	assert.Equal(t, "jul25", energy.Name)

	scde := FindScdeSheet(w)
	require.NotNil(t, scde)
	assert.Equal(t, "SCDE", scde.Name)

	assert.Nil(t, FindEnergySheet(wb("Dados"), "jul25"))
	assert.Nil(t, FindScdeSheet(wb("Dados")))
}

func TestInferDateFromFileName(t *testing.T) {
	got := InferDateFromFileName("balanco_2024-07.xlsx")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC), *got)

	got = InferDateFromFileName("notas_jul25.xlsx")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), *got)

	assert.Nil(t, InferDateFromFileName("relatorio.pdf"))
}
