package onedrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// AppRootPath is the drive reference of the application's own folder.
const AppRootPath = "special/approot"

// GetDriveItem fetches the metadata of the item at path. path is a
// drive-relative reference such as "root:/Documents/report.docx",
// "items/{id}" or "special/approot".
//
// Example:
//
//	item, err := client.GetDriveItem(ctx, "root:/Documents/report.docx")
//	if err != nil { return err }
//	if f, ok := item.(*onedrive.File); ok {
//	    fmt.Println(f.Name, f.Hashes.QuickXorHash)
//	}
func (c *Client) GetDriveItem(ctx context.Context, path string) (DriveItem, error) {
	c.logger.Debug("get drive item", slog.String("path", path))

	var raw driveItemJSON
	if err := c.requestJSON(ctx, http.MethodGet, c.endpoint("me/drive/%s:", path), true, nil, &raw); err != nil {
		return nil, fmt.Errorf("getting %q: %w", path, err)
	}
	return raw.toDriveItem()
}

// GetAppRoot returns the application's folder, creating nothing.
func (c *Client) GetAppRoot(ctx context.Context) (*Folder, error) {
	item, err := c.GetDriveItem(ctx, AppRootPath)
	if err != nil {
		return nil, err
	}
	folder, ok := item.(*Folder)
	if !ok {
		return nil, fmt.Errorf("%w: app root %q is not a folder", ErrUnknownItemType, item.ItemInfo().ID)
	}
	return folder, nil
}

// childrenPage is one page of a children listing.
type childrenPage struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

// ListDriveItems returns every child of the folder with the given id,
// following @odata.nextLink until the listing is exhausted. Children that
// are neither files nor folders are skipped; any other malformed child
// fails the listing.
func (c *Client) ListDriveItems(ctx context.Context, itemID string) ([]DriveItem, error) {
	c.logger.Debug("list drive items", slog.String("item_id", itemID))

	var items []DriveItem
	next := c.endpoint("me/drive/items/%s/children", itemID)
	for page := 1; next != ""; page++ {
		var p childrenPage
		if err := c.requestJSON(ctx, http.MethodGet, next, true, nil, &p); err != nil {
			return nil, fmt.Errorf("listing children of %q (page %d): %w", itemID, page, err)
		}

		for _, rawItem := range p.Value {
			item, err := UnmarshalDriveItem(rawItem)
			if err != nil {
				if !errors.Is(err, ErrUnknownItemType) {
					return nil, fmt.Errorf("listing children of %q (page %d): %w", itemID, page, err)
				}
				c.logger.Warn("skipping drive item",
					slog.String("parent_id", itemID),
					slog.String("error", err.Error()),
				)
				continue
			}
			items = append(items, item)
		}
		next = p.NextLink
	}

	return items, nil
}

// DeleteDriveItem deletes the item at path. Graph moves it to the recycle bin.
func (c *Client) DeleteDriveItem(ctx context.Context, path string) error {
	c.logger.Debug("delete drive item", slog.String("path", path))

	if err := c.requestJSON(ctx, http.MethodDelete, c.endpoint("me/drive/items/%s:", path), true, nil, nil); err != nil {
		return fmt.Errorf("deleting %q: %w", path, err)
	}
	return nil
}

// DownloadDriveItem opens the content of the item at path. Graph answers
// with a redirect to a pre-authenticated URL which the HTTP client follows;
// the Authorization header is not forwarded to the other host. The caller
// must close the returned reader.
func (c *Client) DownloadDriveItem(ctx context.Context, path string) (io.ReadCloser, error) {
	c.logger.Debug("download drive item", slog.String("path", path))

	res, err := c.request(ctx, http.MethodGet, c.endpoint("me/drive/items/%s:/content", path), true, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("downloading %q: %w", path, err)
	}
	return res.Body, nil
}

// UpdateDriveItem applies update to the item with the given id. Use it to
// rename, re-describe or move an item.
func (c *Client) UpdateDriveItem(ctx context.Context, itemID string, update ItemUpdate) (DriveItem, error) {
	c.logger.Debug("update drive item", slog.String("item_id", itemID))

	var raw driveItemJSON
	if err := c.requestJSON(ctx, http.MethodPatch, c.endpoint("me/drive/items/%s", itemID), true, update, &raw); err != nil {
		return nil, fmt.Errorf("updating %q: %w", itemID, err)
	}
	return raw.toDriveItem()
}

type createFolderRequest struct {
	Name             string           `json:"name"`
	Folder           struct{}         `json:"folder"`
	ConflictBehavior ConflictBehavior `json:"@microsoft.graph.conflictBehavior"`
}

// CreateFolder creates a folder named name under the folder parentID.
// An empty behavior means ConflictRename.
func (c *Client) CreateFolder(ctx context.Context, parentID, name string, behavior ConflictBehavior) (*Folder, error) {
	if behavior == "" {
		behavior = ConflictRename
	}
	if !behavior.Valid() {
		return nil, fmt.Errorf("%w: conflict behavior %q", ErrInvalidArgument, behavior)
	}
	if err := ValidateFileName(name); err != nil {
		return nil, err
	}
	c.logger.Debug("create folder",
		slog.String("parent_id", parentID),
		slog.String("name", name),
		slog.String("conflict_behavior", string(behavior)),
	)

	body := createFolderRequest{Name: name, ConflictBehavior: behavior}
	var folder Folder
	if err := c.requestJSON(ctx, http.MethodPost, c.endpoint("me/drive/items/%s/children", parentID), true, body, &folder); err != nil {
		return nil, fmt.Errorf("creating folder %q in %q: %w", name, parentID, err)
	}
	return &folder, nil
}
