// Package archive reads and writes index archives: tar or gzip-compressed
// tar files holding one index blob, its id list and its metadata.
package archive

// Entry names inside an index archive.
const (
	IndexFile    = "index.ann"
	IDsFile      = "ids.txt"
	MetadataFile = "metadata.json"
)

// Files written next to an extraction.
const (
	TimestampFile = "timestamp.txt"
	LockFile      = ".extract.lock"
)

// RequiredFiles must all be present after extraction.
var RequiredFiles = []string{IndexFile, IDsFile, MetadataFile}
