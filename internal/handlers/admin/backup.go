package admin

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/response"
)

// BackupInfo describes one snapshot file.
type BackupInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at"`
}

func (h *Handler) backupDir() string {
	if h.BackupDir == "" {
		return "backups"
	}
	return h.BackupDir
}

func validBackupName(name string) bool {
	return strings.HasPrefix(name, "windoorpvc-") && strings.HasSuffix(name, ".db") &&
		!strings.ContainsAny(name, `/\'`) && !strings.Contains(name, "..")
}

// CreateBackup snapshots the live database with VACUUM INTO, which is
// consistent while other connections keep writing.
func (h *Handler) CreateBackup(now time.Time) (BackupInfo, error) {
	dir := h.backupDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return BackupInfo{}, err
	}
	name := "windoorpvc-" + now.UTC().Format("20060102-150405") + ".db"
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		return BackupInfo{}, fmt.Errorf("backup %s already exists", name)
	}
	quoted := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	if _, err := h.DB.Exec("VACUUM INTO " + quoted); err != nil {
		return BackupInfo{}, fmt.Errorf("vacuum into %s: %w", path, err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return BackupInfo{}, err
	}
	return BackupInfo{Filename: name, Size: fi.Size(), CreatedAt: fi.ModTime().UTC().Format(time.RFC3339)}, nil
}

// ListBackups returns snapshots, newest first.
func ListBackups(dir string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []BackupInfo{}, nil
	}
	if err != nil {
		return nil, err
	}
	backups := []BackupInfo{}
	for _, e := range entries {
		if e.IsDir() || !validBackupName(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{Filename: e.Name(), Size: fi.Size(), CreatedAt: fi.ModTime().UTC().Format(time.RFC3339)})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].Filename > backups[j].Filename })
	return backups, nil
}

// HandleCreateBackup creates a new backup.
func (h *Handler) HandleCreateBackup(w http.ResponseWriter, r *http.Request) {
	if h.RequireAdmin(w, r) == nil {
		return
	}
	info, err := h.CreateBackup(time.Now())
	if err != nil {
		response.Err(w, fmt.Sprintf("Backup failed: %v", err), 500)
		return
	}
	h.Audit.Record(r, audit.ActionCreate, "backups", info.Filename, "نسخة احتياطية "+info.Filename)
	response.JSON(w, info)
}

// HandleListBackups lists all backups.
func (h *Handler) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.RequireAdmin(w, r) == nil {
		return
	}
	backups, err := ListBackups(h.backupDir())
	if err != nil {
		response.Err(w, fmt.Sprintf("Failed to list backups: %v", err), 500)
		return
	}
	response.JSON(w, backups)
}

// HandleDeleteBackup deletes a backup by filename.
func (h *Handler) HandleDeleteBackup(w http.ResponseWriter, r *http.Request, filename string) {
	if h.RequireAdmin(w, r) == nil {
		return
	}
	if !validBackupName(filename) {
		response.Err(w, "Invalid filename", 400)
		return
	}
	if err := os.Remove(filepath.Join(h.backupDir(), filename)); err != nil {
		if os.IsNotExist(err) {
			response.Err(w, "Backup not found", 404)
		} else {
			response.Err(w, fmt.Sprintf("Failed to delete: %v", err), 500)
		}
		return
	}
	h.Audit.Record(r, audit.ActionDelete, "backups", filename, "حذف النسخة "+filename)
	response.JSON(w, map[string]string{"status": "deleted", "id": filename})
}

// HandleDownloadBackup streams a backup file.
func (h *Handler) HandleDownloadBackup(w http.ResponseWriter, r *http.Request, filename string) {
	if h.RequireAdmin(w, r) == nil {
		return
	}
	if !validBackupName(filename) {
		response.Err(w, "Invalid filename", 400)
		return
	}
	f, err := os.Open(filepath.Join(h.backupDir(), filename))
	if err != nil {
		if os.IsNotExist(err) {
			response.Err(w, "Backup not found", 404)
		} else {
			response.Err(w, "Failed to open backup", 500)
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, filename, info.ModTime(), f)
}
