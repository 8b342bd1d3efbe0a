package remote

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"snapsync/internal/credential"
	"snapsync/internal/snap"
)

// DefaultChunkSize is the resumable upload chunk size used when none is configured.
const DefaultChunkSize = googleapi.DefaultUploadChunkSize

const driveFileFields = "id, name, mimeType, size"

// driveFiles is the subset of the Drive files API the store uses.
type driveFiles interface {
	list(ctx context.Context, query, pageToken string) (*drive.FileList, error)
	create(ctx context.Context, file *drive.File, r io.Reader) (*drive.File, error)
	update(ctx context.Context, id string, file *drive.File, r io.Reader) (*drive.File, error)
}

// GDriveStore implements snap.RemoteStore on Google Drive.
// Drive allows many files with the same name; List returns them oldest first.
type GDriveStore struct {
	files    driveFiles
	folderID string
}

var _ snap.RemoteStore = (*GDriveStore)(nil)

// NewGDriveStore creates a store over an authenticated Drive service. When
// folderID is set, listing and creation are confined to that folder.
func NewGDriveStore(svc *drive.Service, folderID string, chunkSize int) *GDriveStore {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &GDriveStore{
		files:    &driveService{svc: svc, chunkSize: chunkSize},
		folderID: folderID,
	}
}

// listQuery builds the Drive search query for an exact, non-trashed name.
func (s *GDriveStore) listQuery(name string) string {
	q := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(name))
	if s.folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(s.folderID))
	}
	return q
}

func (s *GDriveStore) List(ctx context.Context, name string) ([]snap.RemoteObject, error) {
	q := s.listQuery(name)
	var out []snap.RemoteObject
	pageToken := ""
	for {
		list, err := s.files.list(ctx, q, pageToken)
		if err != nil {
			return nil, fmt.Errorf("listing %q: %w", name, err)
		}
		for _, f := range list.Files {
			// Drive name matching is exact; keep List correct for fakes too.
			if f.Name == name {
				out = append(out, driveObject(f))
			}
		}
		if list.NextPageToken == "" {
			return out, nil
		}
		pageToken = list.NextPageToken
	}
}

func (s *GDriveStore) Create(ctx context.Context, meta snap.ObjectMeta, r io.Reader) (*snap.RemoteObject, error) {
	file := &drive.File{
		Name:     meta.Name,
		MimeType: meta.ContentType,
	}
	if s.folderID != "" {
		file.Parents = []string{s.folderID}
	}
	f, err := s.files.create(ctx, file, r)
	if err != nil {
		return nil, fmt.Errorf("creating %q: %w", meta.Name, err)
	}
	obj := driveObject(f)
	return &obj, nil
}

func (s *GDriveStore) Update(ctx context.Context, id string, meta snap.ObjectMeta, r io.Reader) (*snap.RemoteObject, error) {
	f, err := s.files.update(ctx, id, &drive.File{MimeType: meta.ContentType}, r)
	if err != nil {
		return nil, fmt.Errorf("updating %s: %w", id, err)
	}
	obj := driveObject(f)
	return &obj, nil
}

func driveObject(f *drive.File) snap.RemoteObject {
	return snap.RemoteObject{
		ID:          f.Id,
		Name:        f.Name,
		ContentType: f.MimeType,
		Size:        f.Size,
	}
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

// driveService implements driveFiles with the generated Drive client.
type driveService struct {
	svc       *drive.Service
	chunkSize int
}

func (d *driveService) list(ctx context.Context, query, pageToken string) (*drive.FileList, error) {
	call := d.svc.Files.List().
		Q(query).
		OrderBy("createdTime").
		Fields(googleapi.Field("nextPageToken, files(" + driveFileFields + ")")).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

func (d *driveService) create(ctx context.Context, file *drive.File, r io.Reader) (*drive.File, error) {
	return d.svc.Files.Create(file).
		Media(r, googleapi.ContentType(file.MimeType), googleapi.ChunkSize(d.chunkSize)).
		Fields(driveFileFields).
		Context(ctx).
		Do()
}

func (d *driveService) update(ctx context.Context, id string, file *drive.File, r io.Reader) (*drive.File, error) {
	return d.svc.Files.Update(id, file).
		Media(r, googleapi.ContentType(file.MimeType), googleapi.ChunkSize(d.chunkSize)).
		Fields(driveFileFields).
		Context(ctx).
		Do()
}

// GDriveConnector opens a GDriveStore with the OAuth credential acquired for the run.
type GDriveConnector struct {
	folderID  string
	chunkSize int
	opts      []option.ClientOption
}

var _ snap.Connector = (*GDriveConnector)(nil)

// NewGDriveConnector creates a GDriveConnector. Extra client options are
// appended after the authenticated HTTP client, e.g. an endpoint override.
func NewGDriveConnector(folderID string, chunkSize int, opts ...option.ClientOption) *GDriveConnector {
	return &GDriveConnector{folderID: folderID, chunkSize: chunkSize, opts: opts}
}

func (c *GDriveConnector) Connect(ctx context.Context, cred *snap.RemoteCredential) (snap.RemoteStore, error) {
	if cred == nil || cred.AccessToken == "" {
		return nil, fmt.Errorf("gdrive requires an oauth access token")
	}
	// The token was validated and refreshed during authentication.
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(credential.TokenFromRemote(cred)))
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, c.opts...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return NewGDriveStore(svc, c.folderID, c.chunkSize), nil
}
