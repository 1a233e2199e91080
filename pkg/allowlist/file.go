// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package allowlist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type fileEntry struct {
	UUID     string `yaml:"uuid"`
	Username string `yaml:"username"`
}

type fileDocument struct {
	Entries []fileEntry `yaml:"entries"`
}

// FileList is an allow-list stored as a YAML file:
//
//	entries:
//	  - uuid: 6f1d8a4e-4c3b-4d7a-9a57-0d1c2b3a4f50
//	    username: Alice
//
// Every change is written back before the call returns.
type FileList struct {
	path string
	log  zerolog.Logger

	mu      sync.RWMutex
	entries map[uuid.UUID]string
}

var _ List = (*FileList)(nil)

// LoadFile reads the allow-list at path. A missing file is an empty list
// and is created on the first change.
func LoadFile(path string, log zerolog.Logger) (*FileList, error) {
	l := &FileList{
		path: path,
		log:  log.With().Str("component", "allowlist").Str("path", path).Logger(),
	}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload replaces the in-memory list with the file contents.
func (l *FileList) Reload() error {
	entries, err := l.read()
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
	l.log.Info().Int("entries", len(entries)).Msg("Loaded allow-list")
	return nil
}

// read parses the file. A missing file is an empty list.
func (l *FileList) read() (map[uuid.UUID]string, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		data = nil
	} else if err != nil {
		return nil, fmt.Errorf("read allow-list: %w", err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse allow-list: %w", err)
	}
	entries := make(map[uuid.UUID]string, len(doc.Entries))
	for i, fe := range doc.Entries {
		id, err := uuid.Parse(fe.UUID)
		if err != nil {
			return nil, fmt.Errorf("allow-list entry %d: invalid uuid %q: %w", i, fe.UUID, err)
		}
		entries[id] = fe.Username
	}
	return entries, nil
}

// Contains implements List. Thread-safe.
func (l *FileList) Contains(_ context.Context, id uuid.UUID) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[id]
	return ok, nil
}

// Add implements List. The file is reread first so entries written by
// another process survive, and nothing changes if the write fails.
// Thread-safe.
func (l *FileList) Add(_ context.Context, id uuid.UUID, username string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, err := l.read()
	if err != nil {
		return false, err
	}
	if _, ok := entries[id]; ok {
		l.entries = entries
		return false, nil
	}
	entries[id] = username
	if err := l.save(entries); err != nil {
		return false, err
	}
	l.entries = entries
	l.log.Info().Str("player", username).Str("player_id", id.String()).Msg("Added player to allow-list")
	return true, nil
}

// Remove implements List. Like Add, it merges with the file first.
// Thread-safe.
func (l *FileList) Remove(_ context.Context, id uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, err := l.read()
	if err != nil {
		return false, err
	}
	username, ok := entries[id]
	if !ok {
		l.entries = entries
		return false, nil
	}
	delete(entries, id)
	if err := l.save(entries); err != nil {
		return false, err
	}
	l.entries = entries
	l.log.Info().Str("player", username).Str("player_id", id.String()).Msg("Removed player from allow-list")
	return true, nil
}

// Entries implements List. Thread-safe.
func (l *FileList) Entries(_ context.Context) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entriesLocked(), nil
}

func (l *FileList) entriesLocked() []Entry {
	return sortedEntries(l.entries)
}

func sortedEntries(m map[uuid.UUID]string) []Entry {
	out := make([]Entry, 0, len(m))
	for id, username := range m {
		out = append(out, Entry{ID: id, Username: username})
	}
	sortEntries(out)
	return out
}

// save writes entries to a temporary file in the same directory and
// renames it over the original.
func (l *FileList) save(m map[uuid.UUID]string) error {
	entries := sortedEntries(m)
	doc := fileDocument{Entries: make([]fileEntry, len(entries))}
	for i, e := range entries {
		doc.Entries[i] = fileEntry{UUID: e.ID.String(), Username: e.Username}
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode allow-list: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create allow-list directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(l.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp allow-list: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write allow-list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write allow-list: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace allow-list: %w", err)
	}
	return nil
}
