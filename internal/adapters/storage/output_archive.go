package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/emiliopalmerini/mtune/internal/util"
)

// OutputArchive keeps the gzipped output of objective commands on disk, one
// file per trial under a directory per study.
type OutputArchive struct {
	baseDir string
}

// NewOutputArchive uses dir, or the XDG data directory when dir is empty.
func NewOutputArchive(dir string) (*OutputArchive, error) {
	if dir == "" {
		dataDir, err := util.GetXDGDataDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(dataDir, "outputs")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create outputs directory: %w", err)
	}

	return &OutputArchive{baseDir: dir}, nil
}

func (s *OutputArchive) Store(ctx context.Context, studyName string, number int, output []byte) (string, error) {
	if err := os.MkdirAll(s.studyDir(studyName), 0755); err != nil {
		return "", fmt.Errorf("failed to create study output directory: %w", err)
	}

	destPath := s.getPath(studyName, number)
	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() { _ = dest.Close() }()

	gw := gzip.NewWriter(dest)
	defer func() { _ = gw.Close() }()

	if _, err := io.Copy(gw, bytes.NewReader(output)); err != nil {
		return "", fmt.Errorf("failed to compress output: %w", err)
	}

	if err := gw.Close(); err != nil {
		return "", fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return destPath, nil
}

func (s *OutputArchive) Get(ctx context.Context, studyName string, number int) ([]byte, error) {
	file, err := os.Open(s.getPath(studyName, number))
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	gr, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer func() { _ = gr.Close() }()

	data, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}

	return data, nil
}

func (s *OutputArchive) Exists(ctx context.Context, studyName string, number int) (bool, error) {
	_, err := os.Stat(s.getPath(studyName, number))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// DeleteStudy removes every output kept for the study.
func (s *OutputArchive) DeleteStudy(ctx context.Context, studyName string) error {
	if err := os.RemoveAll(s.studyDir(studyName)); err != nil {
		return fmt.Errorf("failed to delete study outputs: %w", err)
	}
	return nil
}

func (s *OutputArchive) studyDir(studyName string) string {
	return filepath.Join(s.baseDir, url.PathEscape(studyName))
}

func (s *OutputArchive) getPath(studyName string, number int) string {
	return filepath.Join(s.studyDir(studyName), strconv.Itoa(number)+".log.gz")
}
