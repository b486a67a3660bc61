// Package provider holds the error taxonomy shared by the embedding and
// generation provider adapters, so callers can classify failures without
// knowing which backend produced them.
package provider
