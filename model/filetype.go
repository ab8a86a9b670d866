package model

import (
	"path"
	"strings"
)

type FileType int

const (
	TypeDefault FileType = iota
	TypeText
	TypeArchive
	TypeImage
	TypeAudio
	TypeVideo
)

func (t FileType) String() string {
	switch t {
	case TypeText:
		return "TEXT"
	case TypeArchive:
		return "ARCHIVE"
	case TypeImage:
		return "IMAGE"
	case TypeAudio:
		return "AUDIO"
	case TypeVideo:
		return "VIDEO"
	default:
		return "DEFAULT"
	}
}

var extensionToType = map[string]FileType{
	".txt": TypeText, ".md": TypeText, ".log": TypeText, ".csv": TypeText,
	".json": TypeText, ".xml": TypeText, ".yaml": TypeText, ".yml": TypeText,
	".toml": TypeText, ".ini": TypeText, ".conf": TypeText, ".properties": TypeText,
	".html": TypeText, ".htm": TypeText, ".css": TypeText, ".js": TypeText,
	".ts": TypeText, ".go": TypeText, ".py": TypeText, ".java": TypeText,
	".kt": TypeText, ".c": TypeText, ".h": TypeText, ".cpp": TypeText,
	".rs": TypeText, ".sh": TypeText, ".sql": TypeText, ".php": TypeText,

	".zip": TypeArchive, ".jar": TypeArchive, ".rar": TypeArchive, ".7z": TypeArchive,
	".tar": TypeArchive, ".gz": TypeArchive, ".tgz": TypeArchive, ".bz2": TypeArchive,
	".xz": TypeArchive,

	".png": TypeImage, ".jpg": TypeImage, ".jpeg": TypeImage, ".gif": TypeImage,
	".bmp": TypeImage, ".webp": TypeImage, ".svg": TypeImage, ".ico": TypeImage,

	".mp3": TypeAudio, ".ogg": TypeAudio, ".wav": TypeAudio, ".flac": TypeAudio,
	".aac": TypeAudio, ".m4a": TypeAudio,

	".mp4": TypeVideo, ".mkv": TypeVideo, ".webm": TypeVideo, ".avi": TypeVideo,
	".mov": TypeVideo, ".3gp": TypeVideo,
}

// TypeOf derives the FileType of name from its extension.
func TypeOf(name string) FileType {
	if t, ok := extensionToType[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	return TypeDefault
}
