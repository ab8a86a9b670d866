package protocols

import (
	"os"

	"editorfs/model"
)

// sftpFileModel maps a directory entry found under parent, deriving the
// permission bits from the numeric mode the server reports.
func sftpFileModel(info os.FileInfo, parent model.FileModel) model.FileModel {
	return model.FileModel{
		FileURI:        parent.Child(info.Name(), info.IsDir()).FileURI,
		FilesystemUUID: parent.FilesystemUUID,
		Size:           info.Size(),
		LastModified:   info.ModTime().UnixMilli(),
		IsDirectory:    info.IsDir(),
		Permission:     model.AccessFromMode(info.Mode()).Permission(),
	}
}
