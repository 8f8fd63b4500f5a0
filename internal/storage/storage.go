package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Dir permission bits used after a project rename. Group and other get read
// only; the service itself keeps read, write and traverse.
const renamedDirMode = os.FileMode(0o745)

var ErrUnsafeName = errors.New("storage: name contains path elements")

// Workspace is the directory tree under the upload root, one directory per
// user, one subdirectory per project. All paths handed out by the workspace
// are rooted at Root and stored verbatim in the registry.
type Workspace struct {
	root string
}

func NewWorkspace(root string) *Workspace {
	return &Workspace{root: root}
}

func (w *Workspace) Root() string {
	return w.root
}

// SafeName rejects anything that would escape the directory it is joined
// into. Names are used as single path elements only.
func SafeName(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", ErrUnsafeName
	}
	if strings.ContainsAny(name, "/\\") || strings.ContainsRune(name, os.PathSeparator) {
		return "", ErrUnsafeName
	}
	return name, nil
}

// EnsureUserDir creates the user's directory if missing and returns its
// path, which callers persist as the project row's Path.
func (w *Workspace) EnsureUserDir(username string) (string, error) {
	name, err := SafeName(username)
	if err != nil {
		return "", err
	}
	path := filepath.Join(w.root, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create user dir: %w", err)
	}
	return path, nil
}

// CreateProjectDir makes the project directory. An existing directory is
// reported via os.ErrExist so the caller can turn it into a conflict.
func (w *Workspace) CreateProjectDir(path, name string) error {
	safe, err := SafeName(name)
	if err != nil {
		return err
	}
	return os.Mkdir(filepath.Join(path, safe), 0o755)
}

// RenameProjectDir renames the directory and then tightens its mode.
func (w *Workspace) RenameProjectDir(path, oldName, newName string) error {
	oldSafe, err := SafeName(oldName)
	if err != nil {
		return err
	}
	newSafe, err := SafeName(newName)
	if err != nil {
		return err
	}
	oldDir := filepath.Join(path, oldSafe)
	newDir := filepath.Join(path, newSafe)
	if err := os.Rename(oldDir, newDir); err != nil {
		return err
	}
	return os.Chmod(newDir, renamedDirMode)
}

func (w *Workspace) RemoveProjectDir(path, name string) error {
	safe, err := SafeName(name)
	if err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(path, safe))
}

// ProjectDir joins a project row's path and name into its directory.
func (w *Workspace) ProjectDir(path, name string) string {
	return filepath.Join(path, name)
}

// Rel expresses a workspace path relative to the root, for mapping onto the
// host-side mount root of pipeline containers.
func (w *Workspace) Rel(path string) (string, error) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q is outside the workspace", path)
	}
	return rel, nil
}

// WriteFile streams r into dir/name, truncating any existing file.
func (w *Workspace) WriteFile(dir, name string, r io.Reader) (int64, error) {
	safe, err := SafeName(name)
	if err != nil {
		return 0, err
	}
	f, err := os.OpenFile(filepath.Join(dir, safe), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func (w *Workspace) RenameFile(dir, oldName, newName string) error {
	oldSafe, err := SafeName(oldName)
	if err != nil {
		return err
	}
	newSafe, err := SafeName(newName)
	if err != nil {
		return err
	}
	return os.Rename(filepath.Join(dir, oldSafe), filepath.Join(dir, newSafe))
}

func (w *Workspace) RemoveFile(dir, name string) error {
	safe, err := SafeName(name)
	if err != nil {
		return err
	}
	return os.Remove(filepath.Join(dir, safe))
}

func (w *Workspace) CopyFile(dir, srcName, dstName string) error {
	srcSafe, err := SafeName(srcName)
	if err != nil {
		return err
	}
	dstSafe, err := SafeName(dstName)
	if err != nil {
		return err
	}
	src, err := os.Open(filepath.Join(dir, srcSafe))
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.OpenFile(filepath.Join(dir, dstSafe), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (w *Workspace) Exists(dir, name string) bool {
	safe, err := SafeName(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, safe))
	return err == nil && !info.IsDir()
}

// Open returns the file for reading. The caller closes it.
func (w *Workspace) Open(dir, name string) (*os.File, error) {
	safe, err := SafeName(name)
	if err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(dir, safe))
}

// List returns the regular file names directly inside dir, sorted by the
// directory order of the OS.
func (w *Workspace) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
