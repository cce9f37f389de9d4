package models

// UploadState names how far an upload progressed. The steps are not atomic:
// an upload that stops between states leaves an inconsistency that only a
// reconciliation scan can find.
type UploadState string

const (
	UploadPending       UploadState = "pending"
	UploadBlobWritten   UploadState = "blob-written"
	UploadRecordCreated UploadState = "record-created"
	UploadListUpdated   UploadState = "list-updated"
)

// DeleteState names how far a delete progressed.
type DeleteState string

const (
	DeletePending       DeleteState = "pending"
	DeleteListUpdated   DeleteState = "list-updated"
	DeleteBlobDeleted   DeleteState = "blob-deleted"
	DeleteRecordDeleted DeleteState = "record-deleted"
)

// OrphanKindForUploadState returns the inconsistency a scan reports for an
// upload that stopped in state. Complete and never-started uploads leave none.
func OrphanKindForUploadState(state UploadState) (OrphanKind, bool) {
	switch state {
	case UploadBlobWritten:
		return OrphanBlob, true
	case UploadRecordCreated:
		return OrphanUnlinkedRecord, true
	default:
		return "", false
	}
}

// OrphanKindForDeleteState returns the inconsistency a scan reports for a
// delete that stopped in state.
func OrphanKindForDeleteState(state DeleteState) (OrphanKind, bool) {
	switch state {
	case DeleteListUpdated, DeleteBlobDeleted:
		return OrphanUnlinkedRecord, true
	default:
		return "", false
	}
}
