// Package theme is the built-in index from symbolic theme keys to image
// file stems. The set is closed: it is fixed at build time and cannot be
// extended from configuration.
package theme

import (
	"errors"
	"fmt"
	"sort"
)

// Theme is a symbolic image key as it appears in a schedule file.
type Theme string

const (
	EnglishCA  Theme = "englishCA"
	FrenchCA   Theme = "frenchCA"
	EnglishSAD Theme = "englishSAD"
	FrenchSAD  Theme = "frenchSAD"
)

var index = map[Theme]string{
	EnglishCA:  "enCAimg",
	FrenchCA:   "frCAimg",
	EnglishSAD: "enSADimg",
	FrenchSAD:  "frSADimg",
}

// ErrUnknownTheme is matched by every *UnknownThemeError.
var ErrUnknownTheme = errors.New("unknown theme")

// UnknownThemeError reports a schedule value that is not in the index.
type UnknownThemeError struct {
	Key string
}

func (e *UnknownThemeError) Error() string {
	return fmt.Sprintf("unknown theme %q", e.Key)
}

func (e *UnknownThemeError) Is(target error) bool {
	return target == ErrUnknownTheme
}

func init() {
	if err := validate(index); err != nil {
		panic(err)
	}
}

// validate checks the table once at load time.
func validate(m map[Theme]string) error {
	seen := make(map[string]Theme, len(m))
	for k, stem := range m {
		if k == "" || stem == "" {
			return fmt.Errorf("theme: empty entry %q -> %q", k, stem)
		}
		if other, dup := seen[stem]; dup {
			return fmt.Errorf("theme: stem %q used by both %q and %q", stem, other, k)
		}
		seen[stem] = k
	}
	return nil
}

// Resolve maps a symbolic key to its image file stem.
func Resolve(key string) (string, error) {
	stem, ok := index[Theme(key)]
	if !ok {
		return "", &UnknownThemeError{Key: key}
	}
	return stem, nil
}

// Keys returns the known themes in sorted order.
func Keys() []Theme {
	keys := make([]Theme, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
