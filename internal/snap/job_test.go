package snap

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNewJob(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src", "proj")
	temp := filepath.Join(tmp, "tmp")

	tests := []struct {
		name    string
		root    string
		tempDir string
		project string
		want    *SnapshotJob
		wantErr bool
	}{
		{
			name:    "name from source root",
			root:    src,
			tempDir: temp,
			want: &SnapshotJob{
				SourceRoot:  src,
				StagingRoot: filepath.Join(temp, "proj"),
				ArchivePath: filepath.Join(temp, "proj.zip"),
				LogicalName: "proj.zip",
			},
		},
		{
			name:    "explicit name with extension",
			root:    src,
			tempDir: temp,
			project: "game.zip",
			want: &SnapshotJob{
				SourceRoot:  src,
				StagingRoot: filepath.Join(temp, "game"),
				ArchivePath: filepath.Join(temp, "game.zip"),
				LogicalName: "game.zip",
			},
		},
		{name: "empty root", tempDir: temp, wantErr: true},
		{name: "empty temp dir", root: src, wantErr: true},
		{name: "name with separator", root: src, tempDir: temp, project: "a/b", wantErr: true},
		{name: "temp inside source", root: src, tempDir: filepath.Join(src, "tmp"), wantErr: true},
		{name: "temp equals source", root: src, tempDir: src, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewJob(tt.root, tt.tempDir, tt.project, nil)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NewJob() expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewJob() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("NewJob() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewJob_CopiesExcludes(t *testing.T) {
	excludes := []string{"Temp"}
	job, err := NewJob(t.TempDir(), t.TempDir(), "proj", excludes)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	excludes[0] = "changed"
	if job.ExcludePatterns[0] != "Temp" {
		t.Errorf("ExcludePatterns = %v, want a copy", job.ExcludePatterns)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateCollecting, "collecting"},
		{StateArchiving, "archiving"},
		{StateAuthenticating, "authenticating"},
		{StateSyncing, "syncing"},
		{StateCleaningUp, "cleaning_up"},
		{StateDone, "done"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestState_ownsLocalState(t *testing.T) {
	owns := map[State]bool{
		StateAuthenticating: true,
		StateSyncing:        true,
	}
	for s := StateIdle; s <= StateFailed; s++ {
		if got := s.ownsLocalState(); got != owns[s] {
			t.Errorf("%s.ownsLocalState() = %v, want %v", s, got, owns[s])
		}
	}
}

func TestParseDuplicatePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    DuplicatePolicy
		wantErr bool
	}{
		{in: "", want: DuplicateFirst},
		{in: "first", want: DuplicateFirst},
		{in: "fail", want: DuplicateFail},
		{in: "newest", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDuplicatePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuplicatePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuplicatePolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

type fixedID string

func (id fixedID) New() string { return string(id) }

func TestNewRunID(t *testing.T) {
	clock := fixedClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.FixedZone("X", 3600)))
	if got, want := NewRunID(clock, fixedID("abc")), "20240115T093000Z-abc"; got != want {
		t.Errorf("NewRunID() = %q, want %q", got, want)
	}
}

func TestCleanup(t *testing.T) {
	tmp := t.TempDir()
	job := &SnapshotJob{
		StagingRoot: filepath.Join(tmp, "proj"),
		ArchivePath: filepath.Join(tmp, "proj.zip"),
	}

	if err := os.MkdirAll(filepath.Join(job.StagingRoot, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(job.ArchivePath, []byte("zip"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Cleanup(job); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	for _, p := range []string{job.StagingRoot, job.ArchivePath} {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s still exists after Cleanup()", p)
		}
	}

	// Cleaning an already clean job is not an error.
	if err := Cleanup(job); err != nil {
		t.Errorf("second Cleanup() error = %v", err)
	}
}

func TestRunRecord_Apply(t *testing.T) {
	started := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	finished := started.Add(time.Minute)
	job := &SnapshotJob{SourceRoot: "/src/proj", LogicalName: "proj.zip"}

	t.Run("success", func(t *testing.T) {
		rec := NewRunRecord("run-1", job, started)
		rec.Apply(&Result{
			State:      StateDone,
			Archive:    &ArchiveInfo{Size: 2048},
			Sync:       &SyncResult{Object: RemoteObject{ID: "obj-1"}, Action: ActionUpdated},
			FinishedAt: finished,
		})
		want := &RunRecord{
			ID:          "run-1",
			LogicalName: "proj.zip",
			SourceRoot:  "/src/proj",
			StartedAt:   started,
			FinishedAt:  sql.NullTime{Time: finished, Valid: true},
			Status:      "success",
			Action:      "updated",
			RemoteID:    "obj-1",
			ArchiveSize: 2048,
		}
		if diff := cmp.Diff(want, rec); diff != "" {
			t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("failure", func(t *testing.T) {
		rec := NewRunRecord("run-2", job, started)
		rec.Apply(&Result{
			State:      StateDone,
			Err:        &AuthError{Op: "acquire", Err: errors.New("denied")},
			FailedIn:   StateAuthenticating,
			FinishedAt: finished,
		})
		if rec.Status != "error" {
			t.Errorf("Status = %q, want error", rec.Status)
		}
		if rec.FailedState != "authenticating" {
			t.Errorf("FailedState = %q, want authenticating", rec.FailedState)
		}
		if rec.Error != "auth: acquire: denied" {
			t.Errorf("Error = %q", rec.Error)
		}
	})
}
