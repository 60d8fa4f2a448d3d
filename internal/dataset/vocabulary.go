package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
)

// Vocabulary holds the object and predicate class names of a dataset.
type Vocabulary struct {
	Objects   []string
	Relations []string

	objectIndex   map[string]int
	relationIndex map[string]int
}

// NewVocabulary indexes the given names. Duplicate names are a configuration error.
func NewVocabulary(objects, relations []string) (*Vocabulary, error) {
	v := &Vocabulary{
		Objects:       objects,
		Relations:     relations,
		objectIndex:   make(map[string]int, len(objects)),
		relationIndex: make(map[string]int, len(relations)),
	}
	for i, name := range objects {
		if _, dup := v.objectIndex[name]; dup {
			return nil, apperrors.ConfigurationError(fmt.Sprintf("duplicate object class %q", name))
		}
		v.objectIndex[name] = i
	}
	for i, name := range relations {
		if _, dup := v.relationIndex[name]; dup {
			return nil, apperrors.ConfigurationError(fmt.Sprintf("duplicate predicate %q", name))
		}
		v.relationIndex[name] = i
	}
	return v, nil
}

// ObjectIndex returns the index of an object class name.
func (v *Vocabulary) ObjectIndex(name string) (int, bool) {
	i, ok := v.objectIndex[name]
	return i, ok
}

// RelationIndex returns the index of a predicate name.
func (v *Vocabulary) RelationIndex(name string) (int, bool) {
	i, ok := v.relationIndex[name]
	return i, ok
}

// LoadVocabulary reads one name per line from the object and predicate files.
func LoadVocabulary(objectsPath, relationsPath string) (*Vocabulary, error) {
	objects, err := readNamesFile(objectsPath)
	if err != nil {
		return nil, err
	}
	relations, err := readNamesFile(relationsPath)
	if err != nil {
		return nil, err
	}
	return NewVocabulary(objects, relations)
}

func readNamesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, "opening vocabulary", err).WithDetail("path", path)
	}
	defer f.Close()

	names, err := ParseNames(f)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, "reading vocabulary", err).WithDetail("path", path)
	}
	if len(names) == 0 {
		return nil, apperrors.ConfigurationError("vocabulary is empty").WithDetail("path", path)
	}
	return names, nil
}

// ParseNames returns the trimmed non-empty lines of r.
func ParseNames(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	return names, sc.Err()
}
