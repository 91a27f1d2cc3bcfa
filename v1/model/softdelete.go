package model

import (
	"github.com/polystore/polystore/v1/adapter"
)

// TrashedMode selects which records a read sees on a soft-delete model.
type TrashedMode int

const (
	// TrashedExclude is the default: only records whose delete marker is
	// unset.
	TrashedExclude TrashedMode = iota
	// TrashedOnly returns only marked records.
	TrashedOnly
	// TrashedInclude adds no marker filter at all.
	TrashedInclude
)

func (m TrashedMode) String() string {
	switch m {
	case TrashedOnly:
		return "trashed"
	case TrashedInclude:
		return "all"
	default:
		return "active"
	}
}

// softDeleteFilter returns the marker predicate for the mode, or nil when
// the definition does not soft-delete or the mode adds nothing.
func softDeleteFilter(def *Definition, mode TrashedMode) adapter.Expr {
	if !def.SoftDelete {
		return nil
	}
	switch mode {
	case TrashedOnly:
		return adapter.NotNull{Field: def.DeletedField}
	case TrashedInclude:
		return nil
	default:
		return adapter.IsNull{Field: def.DeletedField}
	}
}
