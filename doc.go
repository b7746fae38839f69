// Package halo is an embeddable face similarity-search engine.
//
// A halo Engine turns face images into fixed-dimension embeddings through an
// external provider, stores them in a vector index next to a metadata record,
// and answers image queries with the top-k most similar known faces ranked by
// cosine similarity. Results for identical query bytes are cached with TTL
// and LRU bounds, and the whole state can be exported to and restored from a
// compact snapshot.
//
// Basic usage:
//
//	provider := embedding.NewRemote(func(o *embedding.RemoteOptions) {
//		o.BaseURL = "http://localhost:8000"
//	})
//
//	eng, err := halo.New(provider)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	id, err := eng.Ingest(ctx, imageBytes, model.Metadata{Label: "alice"})
//	res, err := eng.Query(ctx, queryBytes, 5)
//
// Two index implementations sit behind the same interface: an exact
// brute-force index (IndexFlat) and an approximate HNSW graph (IndexHNSW,
// the default) whose recall/latency trade-off is tuned with WithBreadth.
package halo
