// Package snapshot exports the RBAC catalog as a point-in-time JSON document.
//
// A snapshot holds every permission (active or not), every role with its grants,
// and the stored sidebar order. It is written to object storage through an
// Uploader, normally the S3Uploader:
//
//	uploader, err := snapshot.NewS3Uploader(ctx, snapshot.S3Config{Bucket: "rbac-backups", Region: "us-east-1"})
//	exporter := snapshot.NewExporter(manager.Permissions(), manager.Roles(), manager.Sidebar(), uploader, snapshot.Options{
//	    KeyPrefix: "rbac-snapshots",
//	    Recorder:  metrics,
//	})
//	key, err := exporter.Export(ctx)
//
// Schedule registers Export on a cron scheduler for periodic backups.
package snapshot
