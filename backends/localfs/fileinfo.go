package localfs

import (
	"fmt"
	"os"
	"path"

	"github.com/ebogdum/davgate/metadata"
)

func fileInfoToMetadata(name string, info os.FileInfo) *metadata.Metadata {
	md := &metadata.Metadata{
		Name:        path.Base(name),
		Path:        name,
		Type:        metadata.TypeFile,
		Size:        info.Size(),
		Mode:        fmt.Sprintf("0%o", info.Mode().Perm()),
		MTime:       info.ModTime(),
		ATime:       info.ModTime(),
		CTime:       info.ModTime(),
		BackendType: "localfs",
	}
	if info.IsDir() {
		md.Type = metadata.TypeDirectory
		md.Size = 0
	} else {
		md.ETag = fmt.Sprintf(`"%x%x"`, info.ModTime().UnixNano(), info.Size())
	}
	if name == "/" {
		md.Name = "/"
	}

	md.UID, md.GID = fileOwner(info)
	return md
}
