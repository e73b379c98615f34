package media

import "fmt"

// MetadataError means the getFile lookup failed or returned no file path.
type MetadataError struct {
	FileID string
	Reason string
	Err    error
}

func (e *MetadataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("file metadata %s: %s: %v", e.FileID, e.Reason, e.Err)
	}
	return fmt.Sprintf("file metadata %s: %s", e.FileID, e.Reason)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// DownloadError means the binary could not be retrieved or was empty.
type DownloadError struct {
	FilePath string
	Reason   string
	Err      error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download %s: %s: %v", e.FilePath, e.Reason, e.Err)
	}
	return fmt.Sprintf("download %s: %s", e.FilePath, e.Reason)
}

func (e *DownloadError) Unwrap() error { return e.Err }
