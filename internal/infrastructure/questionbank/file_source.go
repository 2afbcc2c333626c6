package questionbank

import (
	"context"
	"fmt"
	"os"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/question"
)

// FileSource reads the bundled fallback question bank from disk.
type FileSource struct {
	path    string
	decoder *Validator
}

func NewFileSource(path string, decoder *Validator) *FileSource {
	return &FileSource{path: path, decoder: decoder}
}

func (s *FileSource) Name() string { return "bundled:" + s.path }

func (s *FileSource) FetchBank(ctx context.Context) (question.Bank, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open bundled questions: %w", err)
	}
	defer f.Close()
	return s.decoder.DecodeBank(f)
}
