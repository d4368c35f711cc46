package histore_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/histore"
	"github.com/hupe1980/histore/filter"
	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/ref"
	"github.com/hupe1980/histore/value"
)

func Example() {
	ctx := context.Background()

	s, err := histore.Open(ctx,
		histore.WithKeepAllVersions(true),
		histore.WithIndex(histore.IndexDef{Name: "email", Reference: ref.Field(5), Unique: true}),
	)
	if err != nil {
		panic(err)
	}
	defer s.Close()

	ada := model.Key("ada")
	_, _ = s.WriteAt(ctx, 10, histore.Op{Kind: histore.OpAdd, Key: ada, Changes: []histore.Change{
		histore.Set(ref.Field(1), value.String("Ada")),
		histore.Set(ref.Field(2), value.Int(36)),
		histore.Set(ref.Field(5), value.String("ada@example.com")),
	}})
	_, _ = s.WriteAt(ctx, 20, histore.Op{Kind: histore.OpChange, Key: ada, Changes: []histore.Change{
		histore.Set(ref.Field(1), value.String("Ada Lovelace")),
	}})

	now, _, _ := s.Get(ctx, ada, ref.Field(1).Ref())
	then, _, _ := s.Get(ctx, ada, ref.Field(1).Ref(), histore.AtVersion(15))
	fmt.Println(now.StringValue(), "/", then.StringValue())

	res, _ := s.WriteAt(ctx, 30, histore.Op{Kind: histore.OpAdd, Key: model.Key("eve"), Changes: []histore.Change{
		histore.Set(ref.Field(5), value.String("ada@example.com")),
	}})
	var conflict *histore.UniqueConflictError
	if errors.As(res[0].Err, &conflict) {
		fmt.Printf("%s already holds the email\n", conflict.HeldBy)
	}

	n, _ := s.Count(ctx, &filter.GreaterThan{Ref: ref.Field(2), Value: value.Int(30)})
	fmt.Println("over 30:", n)

	// Output:
	// Ada Lovelace / Ada
	// 616461 already holds the email
	// over 30: 1
}

func ExampleStore_Scan() {
	ctx := context.Background()
	s, _ := histore.Open(ctx)
	defer s.Close()

	city := ref.Field(3)
	_, _ = s.WriteAt(ctx, 1,
		histore.Op{Kind: histore.OpAdd, Key: model.Key("a"), Changes: []histore.Change{histore.Set(city, value.String("Berlin"))}},
		histore.Op{Kind: histore.OpAdd, Key: model.Key("b"), Changes: []histore.Change{histore.Set(city, value.String("Hamburg"))}},
		histore.Op{Kind: histore.OpAdd, Key: model.Key("c"), Changes: []histore.Change{histore.Set(city, value.String("Berlin"))}},
	)

	results, _ := s.Scan(ctx, histore.ScanRequest{
		Filter: &filter.Equals{Ref: city, Value: value.String("Berlin")},
	})
	for _, r := range results {
		fmt.Println(string(r.Key), r.Properties[0].Value.StringValue())
	}

	// Output:
	// a Berlin
	// c Berlin
}
