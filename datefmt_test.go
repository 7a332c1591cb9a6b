package doctemplar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedDay = time.Date(2025, 3, 7, 10, 30, 0, 0, time.UTC)

func TestFormatDatePattern(t *testing.T) {
	cases := map[string]string{
		"дд.ММ.гггг":        "07.03.2025",
		"ММММ ММ":           "март 03",
		"дд МММ гг":         "07 мар. 25",
		"ММММ":              "март",
		"гггг-ММ-дд":        "2025-03-07",
		"д.М.г":             "д.М.г",
		"dd.MM.yyyy":        "dd.MM.yyyy",
		"«дд» ММММ гггг г.": "«07» март 2025 г.",
		"":                  "",
	}
	for pattern, want := range cases {
		assert.Equal(t, want, FormatDatePattern(fixedDay, pattern), pattern)
	}
}

// Полное название месяца подставляется раньше двухзначного номера
func TestFormatDatePattern_TokenPrecedence(t *testing.T) {
	for m := time.January; m <= time.December; m++ {
		d := time.Date(2025, m, 15, 0, 0, 0, 0, time.UTC)
		got := FormatDatePattern(d, "ММММ ММ")
		assert.Equal(t, monthNames[m-1]+" "+d.Format("01"), got)
		assert.NotContains(t, got, "М", "остался необработанный токен месяца")
	}
	may := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "май.", FormatDatePattern(may, "МММ"))
}

func TestCurrentDateFunction(t *testing.T) {
	f := NewFunctions()
	ctx := FuncContext{Now: fixedDay}

	out, err := f.Call(ctx, FunctionCall{Name: FuncCurrentDate, Args: []string{"дд.ММ.гггг"}})
	require.NoError(t, err)
	assert.Equal(t, "07.03.2025", out)

	out, err = f.Call(ctx, FunctionCall{Name: FuncCurrentDate})
	require.NoError(t, err)
	assert.Equal(t, "07.03.2025", out)

	_, err = f.Call(ctx, FunctionCall{Name: FuncCurrentDate, Args: []string{"a", "b"}})
	require.Error(t, err)
}
