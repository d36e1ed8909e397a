// Package simpleasset manages media assets from draft to deletion.
//
// An asset is created as a draft, receives its media file (and a best-effort
// thumbnail), may be edited, and is published exactly once. Assets are removed
// through a single reclamation path that is shared by explicit deletes and the
// expiry sweeper:
//
//	svc, err := simpleasset.New(
//		simpleasset.WithRepository(memory.New()),
//		simpleasset.WithBlobStore(fsStore),
//		simpleasset.WithThumbnailGenerator(thumbnail.NewRouter(...)),
//	)
//	id, err := svc.CreateDraft(ctx, 7)
//	res, err := svc.AttachMedia(ctx, simpleasset.AttachMediaRequest{AssetID: id, Body: r, DeclaredSize: n})
//	err = svc.Publish(ctx, id)
//	result := svc.Reclaim(ctx, simpleasset.ReclaimRequest{AssetID: id, Mode: simpleasset.ReclaimSoft, RequestedBy: owner})
//
// Metadata lives behind Repository, binary artifacts behind BlobStore. Blob
// deletion is best-effort and never rolls back a metadata transaction.
package simpleasset
