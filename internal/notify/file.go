package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iliyamo/spot-confirmation/internal/model"
)

// DefaultLogPath is where FileDeliverer writes when no path is given.
var DefaultLogPath = filepath.Join("logs", "notifications.log")

// FileDeliverer appends one line per notification to a log file.  It
// stands in for the outbound messaging provider and gives operators a
// record of what was sent.
type FileDeliverer struct {
	mu   sync.Mutex
	path string
}

// NewFileDeliverer returns a FileDeliverer writing to path.
func NewFileDeliverer(path string) *FileDeliverer {
	if path == "" {
		path = DefaultLogPath
	}
	return &FileDeliverer{path: path}
}

// Send appends n to the file, creating the directory when missing.
func (f *FileDeliverer) Send(_ context.Context, n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	line := fmt.Sprintf("[%s] %s | id=%s | to=%s (%s) | spot=%s | tier=%s | template=%s | %s\n",
		n.At.UTC().Format(time.RFC3339), n.Kind, n.ID, n.Recipient, n.Role, n.SpotID, n.Tier, n.TemplateID, Render(n))
	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
