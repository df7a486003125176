package strategy

import "math"

// Snapshot is the column-oriented market view for one target date:
// today's bar and indicators for every surviving entity, yesterday's
// indicator row under the same names in Prev, and the latest announced
// fundamentals. NaN marks NULL; missing columns read as all-NaN.
//
// 所有列必须与 TsCodes 等长。
type Snapshot struct {
	TsCodes []string
	Names   []string

	Close        []float64
	PctChg       []float64
	Vol          []float64
	TurnoverRate []float64

	Ind  map[string][]float64 // 当日指标列
	Prev map[string][]float64 // 前一交易日指标列

	// Fundamentals. Per-day valuations where available, financial
	// report figures otherwise.
	PeTTM         []float64
	Pb            []float64
	DividendYield []float64
	TotalMV       []float64
	Roe           []float64
	ProfitYoY     []float64
	RevenueYoY    []float64
	DebtRatio     []float64
	CurrentRatio  []float64
}

// NewSnapshot allocates a snapshot for n entities with every column
// initialized to NaN.
func NewSnapshot(n int) *Snapshot {
	return &Snapshot{
		TsCodes:       make([]string, n),
		Names:         make([]string, n),
		Close:         nanColumn(n),
		PctChg:        nanColumn(n),
		Vol:           nanColumn(n),
		TurnoverRate:  nanColumn(n),
		Ind:           make(map[string][]float64),
		Prev:          make(map[string][]float64),
		PeTTM:         nanColumn(n),
		Pb:            nanColumn(n),
		DividendYield: nanColumn(n),
		TotalMV:       nanColumn(n),
		Roe:           nanColumn(n),
		ProfitYoY:     nanColumn(n),
		RevenueYoY:    nanColumn(n),
		DebtRatio:     nanColumn(n),
		CurrentRatio:  nanColumn(n),
	}
}

// Len returns the number of entities in the snapshot.
func (s *Snapshot) Len() int { return len(s.TsCodes) }

// Indicator returns today's column, or an all-NaN column when the
// indicator is absent.
func (s *Snapshot) Indicator(name string) []float64 {
	if col, ok := s.Ind[name]; ok {
		return col
	}
	return nanColumn(s.Len())
}

// IndicatorPrev returns yesterday's column under the same rules.
func (s *Snapshot) IndicatorPrev(name string) []float64 {
	if col, ok := s.Prev[name]; ok {
		return col
	}
	return nanColumn(s.Len())
}

// SetIndicator stores one cell of today's column, allocating it on
// first use.
func (s *Snapshot) SetIndicator(name string, i int, v float64) {
	col, ok := s.Ind[name]
	if !ok {
		col = nanColumn(s.Len())
		s.Ind[name] = col
	}
	col[i] = v
}

// SetIndicatorPrev stores one cell of yesterday's column.
func (s *Snapshot) SetIndicatorPrev(name string, i int, v float64) {
	col, ok := s.Prev[name]
	if !ok {
		col = nanColumn(s.Len())
		s.Prev[name] = col
	}
	col[i] = v
}

func nanColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}
