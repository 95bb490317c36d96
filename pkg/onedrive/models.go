package onedrive

import (
	"encoding/json"
	"fmt"
	"time"
)

// DriveItem is a file or a folder. The concrete type is *File or *Folder;
// use a type switch to tell them apart.
type DriveItem interface {
	// ItemInfo returns the metadata shared by files and folders.
	ItemInfo() *Item
	isDriveItem()
}

// Item holds the metadata common to every drive item.
type Item struct {
	ID                   string               `json:"id"`
	Name                 string               `json:"name"`
	Size                 int64                `json:"size"`
	Description          string               `json:"description,omitempty"`
	ETag                 string               `json:"eTag,omitempty"`
	CTag                 string               `json:"cTag,omitempty"`
	WebURL               string               `json:"webUrl,omitempty"`
	CreatedDateTime      time.Time            `json:"createdDateTime"`
	LastModifiedDateTime time.Time            `json:"lastModifiedDateTime"`
	ParentReference      *ItemParentReference `json:"parentReference,omitempty"`
	CreatedBy            *Contributor         `json:"createdBy,omitempty"`
	LastModifiedBy       *Contributor         `json:"lastModifiedBy,omitempty"`
	FileSystemInfo       *FileSystemInfo      `json:"fileSystemInfo,omitempty"`
	DownloadURL          string               `json:"@microsoft.graph.downloadUrl,omitempty"`
}

// ItemInfo returns i.
func (i *Item) ItemInfo() *Item { return i }

// File is a drive item with a file facet.
type File struct {
	Item
	MimeType string
	Hashes   Hashes
}

func (*File) isDriveItem() {}

// Folder is a drive item with a folder facet.
type Folder struct {
	Item
	ChildCount int
}

func (*Folder) isDriveItem() {}

// Hashes are the content hashes Graph reports for a file. Personal
// OneDrive populates quickXorHash and sha1Hash; sha256Hash is optional.
type Hashes struct {
	QuickXorHash string `json:"quickXorHash,omitempty"`
	SHA1Hash     string `json:"sha1Hash,omitempty"`
	SHA256Hash   string `json:"sha256Hash,omitempty"`
}

// ItemParentReference locates an item's parent. All fields are optional.
type ItemParentReference struct {
	ID        string `json:"id,omitempty"`
	DriveID   string `json:"driveId,omitempty"`
	DriveType string `json:"driveType,omitempty"`
	Path      string `json:"path,omitempty"`
	Name      string `json:"name,omitempty"`
}

// Contributor identifies who created or modified an item.
type Contributor struct {
	User        *User        `json:"user,omitempty"`
	Application *Application `json:"application,omitempty"`
}

// User is the user part of a Contributor.
type User struct {
	ID          string `json:"id,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Application is the application part of a Contributor.
type Application struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// FileSystemInfo carries the client-side timestamps of an item.
type FileSystemInfo struct {
	CreatedDateTime      time.Time `json:"createdDateTime"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
}

// ItemUpdate is the body of a PATCH on an item. Empty fields are left
// unchanged on the server; setting ParentReference moves the item.
type ItemUpdate struct {
	Name            string               `json:"name,omitempty"`
	Description     string               `json:"description,omitempty"`
	ParentReference *ItemParentReference `json:"parentReference,omitempty"`
}

type fileFacet struct {
	MimeType string `json:"mimeType,omitempty"`
	Hashes   Hashes `json:"hashes"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

// driveItemJSON is the wire shape of a Graph driveItem.
type driveItemJSON struct {
	Item
	File   *fileFacet   `json:"file,omitempty"`
	Folder *folderFacet `json:"folder,omitempty"`
}

// MarshalJSON writes f back in Graph's driveItem shape.
func (f File) MarshalJSON() ([]byte, error) {
	return json.Marshal(driveItemJSON{
		Item: f.Item,
		File: &fileFacet{MimeType: f.MimeType, Hashes: f.Hashes},
	})
}

// MarshalJSON writes f back in Graph's driveItem shape.
func (f Folder) MarshalJSON() ([]byte, error) {
	return json.Marshal(driveItemJSON{
		Item:   f.Item,
		Folder: &folderFacet{ChildCount: f.ChildCount},
	})
}

// UnmarshalJSON reads a Graph driveItem that carries a file facet.
func (f *File) UnmarshalJSON(data []byte) error {
	var raw driveItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.File == nil {
		return fmt.Errorf("%w: item %q is not a file", ErrUnknownItemType, raw.Name)
	}
	*f = File{Item: raw.Item, MimeType: raw.File.MimeType, Hashes: raw.File.Hashes}
	return nil
}

// UnmarshalJSON reads a Graph driveItem that carries a folder facet.
func (f *Folder) UnmarshalJSON(data []byte) error {
	var raw driveItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Folder == nil {
		return fmt.Errorf("%w: item %q is not a folder", ErrUnknownItemType, raw.Name)
	}
	*f = Folder{Item: raw.Item, ChildCount: raw.Folder.ChildCount}
	return nil
}

// UnmarshalDriveItem decodes a Graph driveItem. Objects with a folder facet
// become *Folder, objects with a file facet become *File, and anything else
// (packages, notebooks) is reported as ErrUnknownItemType.
func UnmarshalDriveItem(data []byte) (DriveItem, error) {
	var raw driveItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: drive item: %w", ErrDecodingFailed, err)
	}
	return raw.toDriveItem()
}

func (raw *driveItemJSON) toDriveItem() (DriveItem, error) {
	switch {
	case raw.Folder != nil:
		return &Folder{Item: raw.Item, ChildCount: raw.Folder.ChildCount}, nil
	case raw.File != nil:
		return &File{Item: raw.Item, MimeType: raw.File.MimeType, Hashes: raw.File.Hashes}, nil
	default:
		return nil, fmt.Errorf("%w: item %q (%s) has neither a file nor a folder facet",
			ErrUnknownItemType, raw.Name, raw.ID)
	}
}
