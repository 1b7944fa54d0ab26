package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/pushups/internal/model"
)

// ErrEmptySet is returned when an imported set has no questions.
var ErrEmptySet = errors.New("store: set has no questions")

// ImportSet stores the JSON set in data under name. A file already imported
// with the same content is skipped; a file whose content changed since its
// import is skipped too, so that recorded progress keeps pointing at the
// questions it was made on. imported reports whether a set was created.
func (s *Store) ImportSet(name string, data []byte) (id model.SetID, imported bool, err error) {
	hash := sha256sum(data)
	stored, err := s.GetImportedFileHash(name)
	if err != nil {
		return 0, false, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if stored == hash {
		slog.Info("question set unchanged, skipping", "file", name)
		return 0, false, nil
	}
	if stored != "" {
		slog.Warn("question set changed since last import, skipping to keep existing progress", "file", name)
		return 0, false, nil
	}

	var imp model.SetImport
	if err := json.Unmarshal(data, &imp); err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", name, err)
	}
	if len(imp.Questions) == 0 {
		return 0, false, fmt.Errorf("%s: %w", name, ErrEmptySet)
	}
	if imp.Name == "" {
		imp.Name = name
	}

	id, err = s.CreateSet(imp)
	if err != nil {
		return 0, false, fmt.Errorf("create set from %s: %w", name, err)
	}
	if err := s.SetImportedFileHash(name, hash); err != nil {
		return id, true, fmt.Errorf("record import for %s: %w", name, err)
	}
	slog.Info("imported question set", "file", name, "set_id", id, "questions", len(imp.Questions))
	return id, true, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
