// Package service wires the chunker, the embedding provider, and the vector
// index into a document indexing service.
//
// The service is an explicitly constructed, dependency-injected object: the
// caller owns the index and the provider and passes them in. AddDocuments
// chunks each document, embeds the chunks with bounded concurrency, and
// commits whatever succeeded; a batch only fails outright when no chunk
// landed at all.
package service
