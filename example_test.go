package halo_test

import (
	"context"
	"fmt"
	"log"

	halo "github.com/rutmehta/halo"
	"github.com/rutmehta/halo/embedding"
	"github.com/rutmehta/halo/model"
)

func Example() {
	// A deterministic mock provider; production code uses embedding.NewRemote.
	provider := embedding.NewMock(64)

	eng, err := halo.New(provider, halo.WithIndex(halo.IndexFlat))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	id, err := eng.Ingest(ctx, []byte("alice-enrollment-photo"), model.Metadata{
		Label:  "alice",
		Source: "enroll/alice_01.jpg",
	})
	if err != nil {
		log.Fatal(err)
	}

	res, err := eng.Query(ctx, []byte("alice-enrollment-photo"), 1)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("id=%d matches=%d label=%s score=%.1f\n",
		id, len(res.Matches), res.Matches[0].Metadata.Label, res.Matches[0].Score)
	// Output: id=1 matches=1 label=alice score=1.0
}
