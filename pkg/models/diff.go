package models

import (
	"errors"
	"fmt"
)

// ChangeType is the change code printed by zfs diff
type ChangeType string

// Change codes
const (
	Removed  ChangeType = "-"
	Created  ChangeType = "+"
	Modified ChangeType = "M"
	Renamed  ChangeType = "R"
)

// FileType is the inode type code printed by zfs diff -F
type FileType string

// File type codes
const (
	BlockDevice     FileType = "B"
	CharacterDevice FileType = "C"
	Directory       FileType = "/"
	Door            FileType = ">"
	NamedPipe       FileType = "|"
	SymbolicLink    FileType = "@"
	EventPort       FileType = "P"
	Socket          FileType = "="
	RegularFile     FileType = "F"
)

// ErrUnknownCode is returned when a diff code has no known name
var ErrUnknownCode = errors.New("unknown zfs diff code")

var fileTypeNames = map[FileType]string{
	BlockDevice:     "Block device",
	CharacterDevice: "Character device",
	Directory:       "Directory",
	Door:            "Door",
	NamedPipe:       "Named pipe",
	SymbolicLink:    "Symbolic link",
	EventPort:       "Event port",
	Socket:          "Socket",
	RegularFile:     "Regular file",
}

var changeTypeNames = map[ChangeType]string{
	Removed:  "The path has been removed",
	Created:  "The path has been created",
	Modified: "The path has been modified",
	Renamed:  "The path has been renamed",
}

// FileTypeName returns the description of a file type code
func FileTypeName(ft FileType) (string, error) {
	name, ok := fileTypeNames[ft]
	if !ok {
		return "", fmt.Errorf("%w: file type %q", ErrUnknownCode, string(ft))
	}
	return name, nil
}

// ChangeTypeName returns the description of a change type code
func ChangeTypeName(ct ChangeType) (string, error) {
	name, ok := changeTypeNames[ct]
	if !ok {
		return "", fmt.Errorf("%w: change type %q", ErrUnknownCode, string(ct))
	}
	return name, nil
}
