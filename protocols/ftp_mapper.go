package protocols

import (
	"github.com/jlaffaye/ftp"

	"editorfs/model"
)

// ftpFileModel maps a listing entry found under parent. Permission stays
// empty, see the package doc.
func ftpFileModel(entry *ftp.Entry, parent model.FileModel) model.FileModel {
	isDir := entry.Type == ftp.EntryTypeFolder
	return model.FileModel{
		FileURI:        parent.Child(entry.Name, isDir).FileURI,
		FilesystemUUID: parent.FilesystemUUID,
		Size:           int64(entry.Size),
		LastModified:   entry.Time.UnixMilli(),
		IsDirectory:    isDir,
		Permission:     model.EmptyPermission,
	}
}
