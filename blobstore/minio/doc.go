// Package minio provides a blobstore.Store for MinIO and other
// S3-compatible object stores reachable through the MinIO client.
//
// Unlike the s3 package it speaks the S3 protocol directly without the AWS
// SDK, which makes it the natural choice for self-hosted deployments.
package minio
