package transit

// FareTable maps origin stop name -> destination stop name -> fare amount.
// The table may be asymmetric.
type FareTable map[string]map[string]float64

// Lookup returns the fare from -> to. With reverse set, a missing direct entry
// falls back to to -> from.
func (f FareTable) Lookup(from, to string, reverse bool) (float64, bool) {
	if amount, ok := f[from][to]; ok {
		return amount, true
	}
	if reverse {
		if amount, ok := f[to][from]; ok {
			return amount, true
		}
	}
	return 0, false
}

// Set records a single directed fare, creating the origin row when needed.
func (f FareTable) Set(from, to string, amount float64) {
	row, ok := f[from]
	if !ok {
		row = make(map[string]float64)
		f[from] = row
	}
	row[to] = amount
}
