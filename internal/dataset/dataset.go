package dataset

import (
	"path/filepath"
)

// Options selects and locates a dataset.
type Options struct {
	Kind  string
	Split string
	Root  string

	// Optional overrides of the per-kind vocabulary files.
	ObjectVocabPath   string
	RelationVocabPath string
}

// Dataset bundles what every variant provides: vocabularies and an ordered loader.
type Dataset struct {
	Kind       Kind
	Split      Split
	Vocabulary *Vocabulary
	Loader     Loader
}

// Build resolves the variant named by opts and opens its samples.
// Samples live at <root>/<kind dir>/<split>.jsonl.
func Build(opts Options) (*Dataset, error) {
	kind, err := ParseKind(opts.Kind)
	if err != nil {
		return nil, err
	}
	split, err := ParseSplit(opts.Split)
	if err != nil {
		return nil, err
	}
	lay := layouts[kind]

	objPath := opts.ObjectVocabPath
	if objPath == "" {
		objPath = filepath.Join(opts.Root, lay.objectVocab)
	}
	relPath := opts.RelationVocabPath
	if relPath == "" {
		relPath = filepath.Join(opts.Root, lay.relationVocab)
	}

	vocab, err := LoadVocabulary(objPath, relPath)
	if err != nil {
		return nil, err
	}

	loader, err := OpenJSONL(SamplesPath(opts.Root, kind, split))
	if err != nil {
		return nil, err
	}

	return &Dataset{
		Kind:       kind,
		Split:      split,
		Vocabulary: vocab,
		Loader:     loader,
	}, nil
}

// SamplesPath returns where a variant keeps the samples of a split.
func SamplesPath(root string, kind Kind, split Split) string {
	return filepath.Join(root, layouts[kind].samplesDir, string(split)+".jsonl")
}
