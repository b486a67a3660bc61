// Package researchmate provides an embeddable retrieval-augmented
// generation engine for Go.
//
// Documents are split into overlapping chunks, embedded, and stored in a
// durable flat vector index; questions are answered by retrieving the most
// similar chunks and prompting a generation model with them as context.
//
// # Quick Start
//
//	ctx := context.Background()
//
//	idx, _ := index.New(func(o *index.Options) { o.Path = "./data" })
//	defer idx.Close()
//
//	svc, _ := service.New(ctx, idx, ollamaembed.New())
//	svc.AddDocuments(ctx, service.Document{
//	    Content:  text,
//	    Metadata: metadata.Document{"source": metadata.String("paper.pdf")},
//	})
//
//	engine, _ := researchmate.New(svc, ollamagen.New())
//	answer, _ := engine.Answer(ctx, "What does the paper conclude?")
//	fmt.Println(answer.Answer)
//	for _, src := range answer.Sources {
//	    fmt.Println(src.Rank, src.Filename(), src.Score)
//	}
//
// # Durability Model
//
// Every committed insert, delete, and clear is appended to a write-ahead
// log before it is acknowledged; Checkpoint persists a verifiable snapshot
// and truncates the log. A crash loses at most the operation in flight.
// Snapshots can be published to local disk, S3, or MinIO through the
// blobstore packages.
package researchmate
