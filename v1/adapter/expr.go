package adapter

// Expr is the backend-agnostic filter expression. It is a closed tagged
// union: every backend compiles it with an exhaustive type switch, so adding
// a node type requires touching each compiler.
//
// Leaf nodes reference a field by its storage name. Composite nodes (And,
// Or, Not) preserve the order of their children; order is semantic and must
// survive compilation unchanged.
type Expr interface {
	isExpr()
}

// Eq matches records whose field equals Value.
type Eq struct {
	Field string
	Value any
}

// Ne matches records whose field differs from Value.
type Ne struct {
	Field string
	Value any
}

// Gt matches field > Value.
type Gt struct {
	Field string
	Value any
}

// Gte matches field >= Value.
type Gte struct {
	Field string
	Value any
}

// Lt matches field < Value.
type Lt struct {
	Field string
	Value any
}

// Lte matches field <= Value.
type Lte struct {
	Field string
	Value any
}

// In matches records whose field equals any of Values.
type In struct {
	Field  string
	Values []any
}

// Like matches field against Pattern, where '%' matches any run of
// characters and '_' matches exactly one. Relational backends render the
// pattern verbatim; the document backend rewrites it to a regular
// expression.
type Like struct {
	Field   string
	Pattern string
}

// IsNull matches records whose field is null or absent.
type IsNull struct {
	Field string
}

// NotNull matches records whose field is present and non-null.
type NotNull struct {
	Field string
}

// And matches records satisfying every child expression.
type And struct {
	Exprs []Expr
}

// Or matches records satisfying at least one child expression.
type Or struct {
	Exprs []Expr
}

// Not inverts its child expression.
type Not struct {
	Expr Expr
}

// Raw passes a backend-native predicate through uncompiled. Relational
// backends reject it unless the value is a string fragment with args; the
// document backend forwards the map verbatim. Use sparingly; Raw filters are
// not portable.
type Raw struct {
	Predicate any
	Args      []any
}

func (Eq) isExpr()      {}
func (Ne) isExpr()      {}
func (Gt) isExpr()      {}
func (Gte) isExpr()     {}
func (Lt) isExpr()      {}
func (Lte) isExpr()     {}
func (In) isExpr()      {}
func (Like) isExpr()    {}
func (IsNull) isExpr()  {}
func (NotNull) isExpr() {}
func (And) isExpr()     {}
func (Or) isExpr()      {}
func (Not) isExpr()     {}
func (Raw) isExpr()     {}

// AndAll folds zero or more expressions into a single conjunction. It
// returns nil for no input and the sole expression unchanged for one, so
// callers never build one-element And nodes.
func AndAll(exprs ...Expr) Expr {
	filtered := exprs[:0]
	for _, e := range exprs {
		if e != nil {
			filtered = append(filtered, e)
		}
	}
	switch len(filtered) {
	case 0:
		return nil
	case 1:
		return filtered[0]
	default:
		return And{Exprs: append([]Expr(nil), filtered...)}
	}
}
