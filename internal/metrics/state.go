package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// stateVersion is bumped when the state-file envelope changes shape.
// Field additions inside SymbolMetrics do not bump it; they are handled
// by applyLoadDefaults.
const stateVersion = 1

// ErrNoState indicates the state file is missing, empty, or unreadable,
// which callers treat as "bootstrap from scratch", never as fatal.
var ErrNoState = errors.New("metrics: no persisted state")

type stateFile struct {
	Version int                       `json:"version"`
	Symbols map[string]*SymbolMetrics `json:"symbols"`
}

// decodeState parses a persisted table, accepting both the versioned
// envelope and the legacy bare symbol map, and fills migration defaults
// so the rest of the code never sees a partially populated record.
func decodeState(data []byte) (map[string]*SymbolMetrics, error) {
	if len(data) == 0 {
		return nil, ErrNoState
	}

	var envelope stateFile
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Version > 0 && envelope.Symbols != nil {
		if len(envelope.Symbols) == 0 {
			return nil, ErrNoState
		}
		return applyLoadDefaults(envelope.Symbols), nil
	}

	var legacy map[string]*SymbolMetrics
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoState, err)
	}
	if len(legacy) == 0 {
		return nil, ErrNoState
	}
	return applyLoadDefaults(legacy), nil
}

func applyLoadDefaults(symbols map[string]*SymbolMetrics) map[string]*SymbolMetrics {
	for symbol, m := range symbols {
		if m == nil {
			delete(symbols, symbol)
			continue
		}
		if m.Symbol == "" {
			m.Symbol = symbol
		}
		// Records written before drop tracking existed have no
		// PreviousAbsoluteMin; treat it as "never dropped".
		if m.PreviousAbsoluteMin.IsZero() {
			m.PreviousAbsoluteMin = m.AbsoluteMin
		}
	}
	return symbols
}

func encodeState(symbols map[string]*SymbolMetrics) ([]byte, error) {
	return json.MarshalIndent(stateFile{Version: stateVersion, Symbols: symbols}, "", "  ")
}

// writeStateFile writes atomically via a temp file in the target
// directory so a crash mid-write never corrupts the previous state.
func writeStateFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
