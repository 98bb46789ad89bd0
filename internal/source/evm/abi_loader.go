package evm

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// LoadABIs loads ABI JSON files from the provided directories. Directories
// that do not exist are skipped.
func LoadABIs(dirs []string) (map[string]*abi.ABI, error) {
	abis := map[string]*abi.ABI{}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".json") {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read abi %s: %w", path, err)
			}
			a, err := abi.JSON(bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("parse abi %s: %w", path, err)
			}
			abis[path] = &a
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return abis, nil
}

// FindEvent searches loaded ABIs, in path order, for an event with the given name.
func FindEvent(abis map[string]*abi.ABI, eventName string) (*abi.Event, bool) {
	paths := make([]string, 0, len(abis))
	for p := range abis {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if ev, ok := abis[p].Events[eventName]; ok {
			return &ev, true
		}
	}
	return nil, false
}
