package email

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileSender appends every message to a local file.
type FileSender struct {
	mu       sync.Mutex
	filePath string
	logger   *zap.Logger
}

// NewFileSender creates a FileSender, creating the file's directory if needed.
func NewFileSender(filePath string, logger *zap.Logger) (*FileSender, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, fmt.Errorf("email log file path cannot be empty")
	}
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for email log file '%s': %w", dir, err)
	}
	return &FileSender{filePath: filePath, logger: logger.Named("email_file")}, nil
}

func (s *FileSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open email log file: %w", err)
	}
	defer file.Close()

	entry := fmt.Sprintf("--- %s to=%s subject=%q ---\n%s\n--- end ---\n\n",
		time.Now().UTC().Format(time.RFC3339Nano), strings.Join(to, ","), subject, rawMessage)
	if _, err := file.WriteString(entry); err != nil {
		return fmt.Errorf("failed to write email to log file: %w", err)
	}
	s.logger.Debug("email logged to file", zap.Strings("to", to), zap.String("file", s.filePath))
	return nil
}
