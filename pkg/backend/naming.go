package backend

import (
	"path/filepath"
	"strings"
	"time"
)

// ObjectNameTimeFormat is the timestamp layout appended to uploaded object
// names for collision avoidance.
const ObjectNameTimeFormat = "20060102150405"

// TimestampedName derives a collision-resistant object name from a local
// file path: base name, an underscore-separated timestamp, and the
// original extension.
//
//	/work/disk.raw at 2024-01-15 10:30:00 -> disk_20240115103000.raw
func TimestampedName(localPath string, now time.Time) string {
	base := filepath.Base(localPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return stem + "_" + now.Format(ObjectNameTimeFormat) + ext
}

// TimestampedNameWithExt is TimestampedName with the extension replaced.
// The AWS variant forces .raw regardless of the source file's extension.
func TimestampedNameWithExt(localPath string, now time.Time, ext string) string {
	base := filepath.Base(localPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return stem + "_" + now.Format(ObjectNameTimeFormat) + ext
}

// TimestampSuffix returns now in the object-name timestamp layout. Used
// where a timestamp is appended to an image name rather than a file name.
func TimestampSuffix(now time.Time) string {
	return now.Format(ObjectNameTimeFormat)
}
