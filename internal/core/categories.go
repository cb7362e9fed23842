package core

const (
	// FallbackCategory is used when a receipt-derived expense has no category.
	FallbackCategory = "Outros"
	// FallbackDescription is used when neither an override nor a merchant name exists.
	FallbackDescription = "Despesa"
)

// DefaultExpenseCategories is the built-in canonical category order.
func DefaultExpenseCategories() []string {
	return []string{
		"Alimentação",
		"Transporte",
		"Moradia",
		"Saúde",
		"Educação",
		"Lazer",
		"Compras",
		"Contas Fixas",
		FallbackCategory,
	}
}

// Categories is an ordered, duplicate-free set of canonical category names.
type Categories struct {
	names []string
	index map[string]struct{}
}

// NewCategories keeps the first occurrence of each non-empty name.
func NewCategories(names []string) Categories {
	c := Categories{index: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := c.index[n]; ok {
			continue
		}
		c.index[n] = struct{}{}
		c.names = append(c.names, n)
	}
	return c
}

func (c Categories) Names() []string {
	return append([]string(nil), c.names...)
}

func (c Categories) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

func (c Categories) Len() int { return len(c.names) }
