package market

// InstrumentMeta describes how price moves convert to account currency.
type InstrumentMeta struct {
	Name       string
	TickSize   float64
	PointValue float64 // contract multiplier: currency per 1.0 price move per unit
}

var Instruments = map[string]InstrumentMeta{
	"NQ": {
		Name:       "NQ",
		TickSize:   0.25,
		PointValue: 20,
	},
	"MNQ": {
		Name:       "MNQ",
		TickSize:   0.25,
		PointValue: 2,
	},
	"ES": {
		Name:       "ES",
		TickSize:   0.25,
		PointValue: 50,
	},
	"MES": {
		Name:       "MES",
		TickSize:   0.25,
		PointValue: 5,
	},
	"QQQ": {
		Name:       "QQQ",
		TickSize:   0.01,
		PointValue: 1,
	},
}

// Lookup returns instrument metadata, falling back to a unit multiplier for
// symbols that are not in the table.
func Lookup(symbol string) (InstrumentMeta, bool) {
	m, ok := Instruments[symbol]
	if !ok {
		return InstrumentMeta{Name: symbol, TickSize: 0.01, PointValue: 1}, false
	}
	return m, true
}
