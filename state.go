package sketricgen

// UploadState tracks a file's progress through the three-phase upload.
type UploadState string

const (
	UploadPending     UploadState = "pending"
	UploadInitiated   UploadState = "initiated"
	UploadTransferred UploadState = "transferred"
	UploadCompleted   UploadState = "completed"
	UploadFailed      UploadState = "failed"
)

func (s UploadState) String() string {
	return string(s)
}

// Terminated reports whether the session can make no further progress.
func (s UploadState) Terminated() bool {
	return s == UploadCompleted || s == UploadFailed
}
