package filter

import (
	"fmt"

	"github.com/hupe1980/histore/ref"
	"github.com/hupe1980/histore/value"
)

// Validate checks that f is well formed: no nil children, non-empty
// references, valid comparison values and compiled regular expressions.
func Validate(f Filter) error {
	switch f := f.(type) {
	case nil:
		return fmt.Errorf("%w: nil filter", ErrInvalidFilter)
	case *Exists:
		return checkRef(f.Ref)
	case *Equals:
		return checkLeaf(f.Ref, f.Value)
	case *GreaterThan:
		return checkLeaf(f.Ref, f.Value)
	case *GreaterThanEquals:
		return checkLeaf(f.Ref, f.Value)
	case *LessThan:
		return checkLeaf(f.Ref, f.Value)
	case *LessThanEquals:
		return checkLeaf(f.Ref, f.Value)
	case *Prefix:
		if err := checkRef(f.Ref); err != nil {
			return err
		}
		if f.Value.Kind != value.KindString && f.Value.Kind != value.KindBytes {
			return fmt.Errorf("%w: prefix on %s value", ErrInvalidFilter, f.Value.Kind)
		}
		return nil
	case *Range:
		if err := checkRef(f.Ref); err != nil {
			return err
		}
		for _, b := range []*value.Value{f.From, f.To} {
			if b != nil && !b.IsValid() {
				return fmt.Errorf("%w: invalid range bound", ErrInvalidFilter)
			}
		}
		if f.From != nil && f.To != nil && !value.Comparable(*f.From, *f.To) {
			return fmt.Errorf("%w: range bounds of %s and %s", ErrInvalidFilter, f.From.Kind, f.To.Kind)
		}
		return nil
	case *RegEx:
		if f.Pattern == nil {
			return fmt.Errorf("%w: nil regular expression", ErrInvalidFilter)
		}
		return checkRef(f.Ref)
	case *ValueIn:
		if err := checkRef(f.Ref); err != nil {
			return err
		}
		for _, v := range f.Values {
			if !v.IsValid() {
				return fmt.Errorf("%w: invalid value in set", ErrInvalidFilter)
			}
		}
		return nil
	case *And:
		return validateAll(f.Filters)
	case *Or:
		return validateAll(f.Filters)
	case *Not:
		return Validate(f.Filter)
	default:
		return fmt.Errorf("%w: unknown filter %T", ErrInvalidFilter, f)
	}
}

func validateAll(fs []Filter) error {
	for _, c := range fs {
		if err := Validate(c); err != nil {
			return err
		}
	}
	return nil
}

func checkRef(p ref.Pattern) error {
	if p.IsEmpty() {
		return fmt.Errorf("%w: empty reference", ErrInvalidFilter)
	}
	return nil
}

func checkLeaf(p ref.Pattern, v value.Value) error {
	if err := checkRef(p); err != nil {
		return err
	}
	if !v.IsValid() {
		return fmt.Errorf("%w: invalid comparison value", ErrInvalidFilter)
	}
	return nil
}
