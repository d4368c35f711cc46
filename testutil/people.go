package testutil

import (
	"fmt"

	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/ref"
	"github.com/hupe1980/histore/value"
)

// Field numbers of the People fixture.
const (
	FieldName  = 1
	FieldAge   = 2
	FieldCity  = 3
	FieldTags  = 4
	FieldEmail = 5
)

// Cities used by People, most popular first.
var Cities = []string{"Berlin", "Hamburg", "Munich", "Cologne", "Leipzig"}

// Property is one reference/value pair of a fixture record.
type Property struct {
	Ref   ref.Reference
	Value value.Value
}

// Person is a fixture record.
type Person struct {
	Key   model.Key
	Name  string
	Age   int64
	City  string
	Tags  []string
	Email string
}

// Properties returns the person as reference/value pairs in reference order.
func (p Person) Properties() []Property {
	props := []Property{
		{Ref: ref.Field(FieldName).Ref(), Value: value.String(p.Name)},
		{Ref: ref.Field(FieldAge).Ref(), Value: value.Int(p.Age)},
		{Ref: ref.Field(FieldCity).Ref(), Value: value.String(p.City)},
	}
	for i, tag := range p.Tags {
		props = append(props, Property{Ref: ref.Field(FieldTags).Index(uint32(i)).Ref(), Value: value.String(tag)})
	}
	return append(props, Property{Ref: ref.Field(FieldEmail).Ref(), Value: value.String(p.Email)})
}

// People returns n deterministic people. Emails are unique; cities are
// Zipf distributed over Cities.
func People(rng *RNG, n int) []Person {
	out := make([]Person, n)
	for i := range out {
		tags := make([]string, rng.Intn(3))
		for j := range tags {
			tags[j] = rng.Word(4)
		}
		name := rng.Word(6)
		out[i] = Person{
			Key:   rng.Key(),
			Name:  name,
			Age:   int64(18 + rng.Intn(60)),
			City:  Cities[rng.Zipf(len(Cities), 1.2)],
			Tags:  tags,
			Email: fmt.Sprintf("%s.%d@example.com", name, i),
		}
	}
	return out
}
