// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("histore/orders"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
//	db, err := histore.Open(histore.WithSnapshotStore(store))
//
// Small blobs are written with a single PutObject carrying a CRC32C
// checksum. Larger snapshots go through the multipart upload manager.
//
// S3 has no compare-and-swap, so two writers racing on CURRENT can lose an
// update. DDBCommitStore routes CURRENT through a DynamoDB conditional
// write instead.
package s3
