// Package s3 provides a blobstore.Store backed by Amazon S3 (or any
// S3-compatible endpoint supported by the AWS SDK).
//
// Uploads go through the SDK's multipart manager so large snapshots are
// transferred in concurrent parts. Because S3 has no atomic rename, the
// optional CommitStore keeps a "latest snapshot" pointer in DynamoDB using
// conditional writes, giving readers an atomic view of the most recent
// fully uploaded snapshot.
package s3
