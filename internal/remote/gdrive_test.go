package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"snapsync/internal/snap"
)

// fakeDrive is an in-memory driveFiles that records queries and uploads.
type fakeDrive struct {
	pages   []*drive.FileList
	queries []string
	tokens  []string
	created []*drive.File
	updated []string
	body    string
	err     error
}

func (f *fakeDrive) list(_ context.Context, query, pageToken string) (*drive.FileList, error) {
	f.queries = append(f.queries, query)
	f.tokens = append(f.tokens, pageToken)
	if f.err != nil {
		return nil, f.err
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeDrive) create(_ context.Context, file *drive.File, r io.Reader) (*drive.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.body = string(data)
	f.created = append(f.created, file)
	return &drive.File{Id: "new-id", Name: file.Name, MimeType: file.MimeType, Size: int64(len(data))}, nil
}

func (f *fakeDrive) update(_ context.Context, id string, file *drive.File, r io.Reader) (*drive.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.body = string(data)
	f.updated = append(f.updated, id)
	return &drive.File{Id: id, Name: "proj.zip", MimeType: file.MimeType, Size: int64(len(data))}, nil
}

func TestGDriveStore_listQuery(t *testing.T) {
	tests := []struct {
		name     string
		folderID string
		object   string
		want     string
	}{
		{
			name:   "no folder",
			object: "proj.zip",
			want:   "name = 'proj.zip' and trashed = false",
		},
		{
			name:     "folder",
			folderID: "folder-1",
			object:   "proj.zip",
			want:     "name = 'proj.zip' and trashed = false and 'folder-1' in parents",
		},
		{
			name:   "quote in name",
			object: `bob's \ proj.zip`,
			want:   `name = 'bob\'s \\ proj.zip' and trashed = false`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &GDriveStore{folderID: tt.folderID}
			if got := s.listQuery(tt.object); got != tt.want {
				t.Errorf("listQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGDriveStore_List(t *testing.T) {
	fake := &fakeDrive{
		pages: []*drive.FileList{
			{
				Files: []*drive.File{
					{Id: "a", Name: "proj.zip", MimeType: "application/zip", Size: 10},
					{Id: "x", Name: "PROJ.zip", MimeType: "application/zip", Size: 1},
				},
				NextPageToken: "page-2",
			},
			{
				Files: []*drive.File{
					{Id: "b", Name: "proj.zip", MimeType: "application/zip", Size: 20},
				},
			},
		},
	}
	s := &GDriveStore{files: fake}

	got, err := s.List(context.Background(), "proj.zip")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []snap.RemoteObject{
		{ID: "a", Name: "proj.zip", ContentType: "application/zip", Size: 10},
		{ID: "b", Name: "proj.zip", ContentType: "application/zip", Size: 20},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"", "page-2"}, fake.tokens); diff != "" {
		t.Errorf("page tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestGDriveStore_CreateAndUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("create in folder", func(t *testing.T) {
		fake := &fakeDrive{}
		s := &GDriveStore{files: fake, folderID: "folder-1"}

		obj, err := s.Create(ctx, zipMeta("proj.zip", "zipdata"), strings.NewReader("zipdata"))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if obj.ID != "new-id" || obj.Size != 7 {
			t.Errorf("Create() = %+v", obj)
		}
		if len(fake.created) != 1 {
			t.Fatalf("created %d files, want 1", len(fake.created))
		}
		if diff := cmp.Diff([]string{"folder-1"}, fake.created[0].Parents); diff != "" {
			t.Errorf("Parents mismatch (-want +got):\n%s", diff)
		}
		if fake.body != "zipdata" {
			t.Errorf("uploaded body = %q", fake.body)
		}
	})

	t.Run("update keeps id", func(t *testing.T) {
		fake := &fakeDrive{}
		s := &GDriveStore{files: fake}

		obj, err := s.Update(ctx, "existing", zipMeta("proj.zip", "v2"), strings.NewReader("v2"))
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if obj.ID != "existing" {
			t.Errorf("Update() ID = %q, want existing", obj.ID)
		}
		if diff := cmp.Diff([]string{"existing"}, fake.updated); diff != "" {
			t.Errorf("updated ids mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("errors are wrapped", func(t *testing.T) {
		boom := errors.New("quota exceeded")
		s := &GDriveStore{files: &fakeDrive{err: boom}}

		if _, err := s.List(ctx, "proj.zip"); !errors.Is(err, boom) {
			t.Errorf("List() error = %v, want %v", err, boom)
		}
		if _, err := s.Create(ctx, zipMeta("proj.zip", "x"), strings.NewReader("x")); !errors.Is(err, boom) {
			t.Errorf("Create() error = %v, want %v", err, boom)
		}
		if _, err := s.Update(ctx, "id", zipMeta("proj.zip", "x"), strings.NewReader("x")); !errors.Is(err, boom) {
			t.Errorf("Update() error = %v, want %v", err, boom)
		}
	})
}

func TestGDriveConnector_Connect(t *testing.T) {
	var (
		gotAuth  string
		gotQuery string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.Method != http.MethodGet || !strings.HasSuffix(r.URL.Path, "/files") {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]any{
				{"id": "f1", "name": "proj.zip", "mimeType": "application/zip", "size": "42"},
			},
		})
	}))
	defer srv.Close()

	c := NewGDriveConnector("", 0, option.WithEndpoint(srv.URL+"/drive/v3/"))
	cred := &snap.RemoteCredential{
		Provider:    "oauth",
		AccessToken: "access-1",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}
	store, err := c.Connect(context.Background(), cred)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	got, err := store.List(context.Background(), "proj.zip")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []snap.RemoteObject{{ID: "f1", Name: "proj.zip", ContentType: "application/zip", Size: 42}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
	if gotAuth != "Bearer access-1" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer access-1")
	}
	if gotQuery != "name = 'proj.zip' and trashed = false" {
		t.Errorf("q = %q", gotQuery)
	}
}

func TestGDriveConnector_RequiresToken(t *testing.T) {
	c := NewGDriveConnector("", 0)
	for _, cred := range []*snap.RemoteCredential{nil, {Provider: "oauth"}} {
		if _, err := c.Connect(context.Background(), cred); err == nil {
			t.Errorf("Connect(%+v) expected error", cred)
		}
	}
}
