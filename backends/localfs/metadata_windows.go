//go:build windows

package localfs

import "os"

// Windows has no numeric owners.
func fileOwner(info os.FileInfo) (uid, gid int) {
	return -1, -1
}
