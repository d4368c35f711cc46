// Package filter defines boolean filter expressions over record properties
// and evaluates them as of a version.
//
// Leaves address properties through a ref.Pattern. A pattern with wildcards
// resolves to every matching property of the record, and the leaf holds if
// any resolved property satisfies it. Comparisons against an absent value,
// or a value of an incomparable kind, are false.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/ref"
	"github.com/hupe1980/histore/value"
)

// ErrInvalidFilter is returned by Validate for malformed expressions.
var ErrInvalidFilter = errors.New("filter: invalid filter")

// Source is the record view a filter is evaluated against.
// *record.Record implements it.
type Source interface {
	Get(r ref.Reference, toVersion model.Version) (value.Value, bool)
	Resolve(p ref.Pattern) []ref.Reference
}

// Filter is a node of a filter expression tree.
type Filter interface {
	fmt.Stringer
	eval(src Source, toVersion model.Version) bool
}

// Exists holds if the property is present.
type Exists struct {
	Ref ref.Pattern
}

// Equals holds if the property equals Value. Numbers compare numerically.
type Equals struct {
	Ref   ref.Pattern
	Value value.Value
}

// GreaterThan holds if the property is greater than Value.
type GreaterThan struct {
	Ref   ref.Pattern
	Value value.Value
}

// GreaterThanEquals holds if the property is greater than or equal to Value.
type GreaterThanEquals struct {
	Ref   ref.Pattern
	Value value.Value
}

// LessThan holds if the property is less than Value.
type LessThan struct {
	Ref   ref.Pattern
	Value value.Value
}

// LessThanEquals holds if the property is less than or equal to Value.
type LessThanEquals struct {
	Ref   ref.Pattern
	Value value.Value
}

// Range holds if the property lies between From and To. A nil bound is unbounded.
type Range struct {
	Ref           ref.Pattern
	From, To      *value.Value
	InclusiveFrom bool
	InclusiveTo   bool
}

// Prefix holds if the string or bytes property starts with Value.
type Prefix struct {
	Ref   ref.Pattern
	Value value.Value
}

// RegEx holds if the string or bytes property matches Pattern.
type RegEx struct {
	Ref     ref.Pattern
	Pattern *regexp.Regexp
}

// ValueIn holds if the property equals any of Values.
type ValueIn struct {
	Ref    ref.Pattern
	Values []value.Value
}

// And holds if every child holds. An empty And holds.
type And struct {
	Filters []Filter
}

// Or holds if any child holds. An empty Or does not hold.
type Or struct {
	Filters []Filter
}

// Not inverts its child.
type Not struct {
	Filter Filter
}

// Evaluate reports whether f holds for src as of toVersion. A nil filter
// always holds.
func Evaluate(f Filter, src Source, toVersion model.Version) bool {
	if f == nil {
		return true
	}
	return f.eval(src, toVersion)
}

func anyValue(src Source, p ref.Pattern, toVersion model.Version, pred func(value.Value) bool) bool {
	for _, r := range src.Resolve(p) {
		if v, ok := src.Get(r, toVersion); ok && pred(v) {
			return true
		}
	}
	return false
}

// compare reports the order of v relative to w, and false if they are not comparable.
func compare(v, w value.Value) (int, bool) {
	if !value.Comparable(v, w) {
		return 0, false
	}
	return value.Compare(v, w), true
}

func equals(v, w value.Value) bool {
	c, ok := compare(v, w)
	return ok && c == 0
}

func (f *Exists) eval(src Source, at model.Version) bool {
	return anyValue(src, f.Ref, at, func(value.Value) bool { return true })
}

func (f *Equals) eval(src Source, at model.Version) bool {
	return anyValue(src, f.Ref, at, func(v value.Value) bool { return equals(v, f.Value) })
}

func (f *GreaterThan) eval(src Source, at model.Version) bool {
	return anyValue(src, f.Ref, at, func(v value.Value) bool {
		c, ok := compare(v, f.Value)
		return ok && c > 0
	})
}

func (f *GreaterThanEquals) eval(src Source, at model.Version) bool {
	return anyValue(src, f.Ref, at, func(v value.Value) bool {
		c, ok := compare(v, f.Value)
		return ok && c >= 0
	})
}

func (f *LessThan) eval(src Source, at model.Version) bool {
	return anyValue(src, f.Ref, at, func(v value.Value) bool {
		c, ok := compare(v, f.Value)
		return ok && c < 0
	})
}

func (f *LessThanEquals) eval(src Source, at model.Version) bool {
	return anyValue(src, f.Ref, at, func(v value.Value) bool {
		c, ok := compare(v, f.Value)
		return ok && c <= 0
	})
}

func (f *Range) eval(src Source, at model.Version) bool {
	return anyValue(src, f.Ref, at, f.contains)
}

func (f *Range) contains(v value.Value) bool {
	if f.From != nil {
		c, ok := compare(v, *f.From)
		if !ok || c < 0 || (c == 0 && !f.InclusiveFrom) {
			return false
		}
	}
	if f.To != nil {
		c, ok := compare(v, *f.To)
		if !ok || c > 0 || (c == 0 && !f.InclusiveTo) {
			return false
		}
	}
	return true
}

func (f *Prefix) eval(src Source, at model.Version) bool {
	return anyValue(src, f.Ref, at, func(v value.Value) bool { return value.HasPrefix(v, f.Value) })
}

func (f *RegEx) eval(src Source, at model.Version) bool {
	return anyValue(src, f.Ref, at, func(v value.Value) bool {
		switch v.Kind {
		case value.KindString:
			return f.Pattern.MatchString(v.StringValue())
		case value.KindBytes:
			b, _ := v.AsBytes()
			return f.Pattern.Match(b)
		default:
			return false
		}
	})
}

func (f *ValueIn) eval(src Source, at model.Version) bool {
	return anyValue(src, f.Ref, at, func(v value.Value) bool {
		for _, w := range f.Values {
			if equals(v, w) {
				return true
			}
		}
		return false
	})
}

func (f *And) eval(src Source, at model.Version) bool {
	for _, c := range f.Filters {
		if !c.eval(src, at) {
			return false
		}
	}
	return true
}

func (f *Or) eval(src Source, at model.Version) bool {
	for _, c := range f.Filters {
		if c.eval(src, at) {
			return true
		}
	}
	return false
}

func (f *Not) eval(src Source, at model.Version) bool {
	return !f.Filter.eval(src, at)
}

func (f *Exists) String() string { return fmt.Sprintf("exists(%s)", f.Ref) }
func (f *Equals) String() string { return fmt.Sprintf("%s == %s", f.Ref, f.Value) }
func (f *GreaterThan) String() string {
	return fmt.Sprintf("%s > %s", f.Ref, f.Value)
}
func (f *GreaterThanEquals) String() string {
	return fmt.Sprintf("%s >= %s", f.Ref, f.Value)
}
func (f *LessThan) String() string { return fmt.Sprintf("%s < %s", f.Ref, f.Value) }
func (f *LessThanEquals) String() string {
	return fmt.Sprintf("%s <= %s", f.Ref, f.Value)
}
func (f *Prefix) String() string { return fmt.Sprintf("prefix(%s, %s)", f.Ref, f.Value) }
func (f *RegEx) String() string {
	if f.Pattern == nil {
		return fmt.Sprintf("regex(%s, <nil>)", f.Ref)
	}
	return fmt.Sprintf("regex(%s, %q)", f.Ref, f.Pattern.String())
}

func (f *Range) String() string {
	var b strings.Builder
	b.WriteString(f.Ref.String())
	b.WriteString(" in ")
	if f.From == nil {
		b.WriteString("(-inf")
	} else {
		b.WriteString(bracket(f.InclusiveFrom, "[", "("))
		b.WriteString(f.From.String())
	}
	b.WriteString(", ")
	if f.To == nil {
		b.WriteString("+inf)")
	} else {
		b.WriteString(f.To.String())
		b.WriteString(bracket(f.InclusiveTo, "]", ")"))
	}
	return b.String()
}

func bracket(inclusive bool, in, ex string) string {
	if inclusive {
		return in
	}
	return ex
}

func (f *ValueIn) String() string {
	parts := make([]string, len(f.Values))
	for i, v := range f.Values {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s in {%s}", f.Ref, strings.Join(parts, ", "))
}

func (f *And) String() string { return join("and", f.Filters) }
func (f *Or) String() string  { return join("or", f.Filters) }
func (f *Not) String() string { return fmt.Sprintf("not(%v)", f.Filter) }

func join(op string, fs []Filter) string {
	parts := make([]string, len(fs))
	for i, c := range fs {
		parts[i] = fmt.Sprint(c)
	}
	return op + "(" + strings.Join(parts, ", ") + ")"
}
