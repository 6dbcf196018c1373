// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hydration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const snapshotVersion = 1

// Snapshot files larger than this are rejected
const maxSnapshotSize = 64 * 1024

// snapshot is the on-disk CBOR form of State. Times are unix nanoseconds,
// zero for unset.
type snapshot struct {
	Version       int     `cbor:"0,keyasint"`
	Weight        float32 `cbor:"1,keyasint"`
	LastUpdate    int64   `cbor:"2,keyasint"`
	AlertLevel    int     `cbor:"3,keyasint"`
	BottleMissing bool    `cbor:"4,keyasint"`
	DailyTotal    float32 `cbor:"5,keyasint"`
	Sessions      int     `cbor:"6,keyasint"`
	LastDrinkML   float32 `cbor:"7,keyasint"`
	LastDrinkTime int64   `cbor:"8,keyasint"`
	SnoozeUntil   int64   `cbor:"9,keyasint"`
	ResetDay      string  `cbor:"10,keyasint"`
	Baseline      float32 `cbor:"11,keyasint"`
	HasBaseline   bool    `cbor:"12,keyasint"`
	LastCheck     int64   `cbor:"13,keyasint"`
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// MarshalState encodes a state as CBOR
func MarshalState(st State) ([]byte, error) {
	return cbor.Marshal(snapshot{
		Version:       snapshotVersion,
		Weight:        st.Weight,
		LastUpdate:    toUnix(st.LastUpdate),
		AlertLevel:    st.AlertLevel,
		BottleMissing: st.BottleMissing,
		DailyTotal:    st.DailyTotal,
		Sessions:      st.Sessions,
		LastDrinkML:   st.LastDrinkML,
		LastDrinkTime: toUnix(st.LastDrinkTime),
		SnoozeUntil:   toUnix(st.SnoozeUntil),
		ResetDay:      st.ResetDay,
		Baseline:      st.Baseline,
		HasBaseline:   st.HasBaseline,
		LastCheck:     toUnix(st.LastCheck),
	})
}

// UnmarshalState decodes a CBOR state. The phase is not stored; Restore
// derives it.
func UnmarshalState(data []byte) (State, error) {
	var s snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("failed to decode hydration snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return State{}, fmt.Errorf("unsupported hydration snapshot version %d", s.Version)
	}
	return State{
		Weight:        s.Weight,
		LastUpdate:    fromUnix(s.LastUpdate),
		AlertLevel:    s.AlertLevel,
		BottleMissing: s.BottleMissing,
		DailyTotal:    s.DailyTotal,
		Sessions:      s.Sessions,
		LastDrinkML:   s.LastDrinkML,
		LastDrinkTime: fromUnix(s.LastDrinkTime),
		SnoozeUntil:   fromUnix(s.SnoozeUntil),
		ResetDay:      s.ResetDay,
		Baseline:      s.Baseline,
		HasBaseline:   s.HasBaseline,
		LastCheck:     fromUnix(s.LastCheck),
	}, nil
}

// Store persists hydration state to a file
type Store struct {
	path string
}

// NewStore creates a store writing to path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file path
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. A missing file returns an error satisfying
// errors.Is(err, os.ErrNotExist).
func (s *Store) Load() (State, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return State{}, err
	}
	if info.Size() > maxSnapshotSize {
		return State{}, fmt.Errorf("hydration snapshot too large: %d bytes", info.Size())
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return State{}, err
	}
	return UnmarshalState(data)
}

// Save writes the snapshot through a temporary file and rename
func (s *Store) Save(st State) error {
	data, err := MarshalState(st)
	if err != nil {
		return fmt.Errorf("failed to encode hydration snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".hydration-*")
	if err != nil {
		return err
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// LoadInto restores m from the store if a snapshot exists
func (s *Store) LoadInto(m *Machine) error {
	st, err := s.Load()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	m.Restore(st)
	return nil
}
