package classifier

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	TokenizerFile = "tokenizer.json"
	LabelsFile    = "labels.json"
	WeightsFile   = "model.gob"
)

// Artifacts is everything needed to reconstruct a trained classifier.
// A bundle is never mutated once published.
type Artifacts struct {
	Weights    *Network
	Vocabulary *Vocabulary
	Labels     *LabelIndex
	MaxLen     int
	Samples    int
}

// Stats summarises a trained bundle.
type Stats struct {
	NumIntents int `json:"num_intents"`
	Samples    int `json:"samples"`
	MaxLen     int `json:"maxlen"`
}

func (a *Artifacts) Stats() Stats {
	return Stats{NumIntents: a.Labels.Len(), Samples: a.Samples, MaxLen: a.MaxLen}
}

type labelsFile struct {
	Labels  map[string]int `json:"labels"`
	MaxLen  int            `json:"maxlen"`
	Samples int            `json:"samples,omitempty"`
}

// check verifies that the three parts of the bundle belong together.
func (a *Artifacts) check() error {
	if a.Weights == nil || a.Vocabulary == nil || a.Labels == nil {
		return errors.New("incomplete artifact bundle")
	}
	if err := a.Weights.validate(); err != nil {
		return err
	}
	if a.MaxLen <= 0 {
		return fmt.Errorf("invalid maxlen %d", a.MaxLen)
	}
	if a.Weights.VocabSize != a.Vocabulary.Len()+1 {
		return fmt.Errorf("weights expect %d tokens, vocabulary has %d", a.Weights.VocabSize, a.Vocabulary.Len()+1)
	}
	if a.Weights.Classes != a.Labels.Len() {
		return fmt.Errorf("weights expect %d classes, label index has %d", a.Weights.Classes, a.Labels.Len())
	}
	return nil
}

// SaveArtifacts writes the bundle into dir. The files are first written to a
// sibling temp directory which then replaces dir, so a failed save never
// leaves a half-written bundle behind.
func SaveArtifacts(a *Artifacts, dir string) error {
	if err := a.check(); err != nil {
		return fmt.Errorf("save artifacts: %w", err)
	}

	parent := filepath.Dir(filepath.Clean(dir))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("creating model parent dir: %w", err)
	}

	tmp := filepath.Join(parent, "."+filepath.Base(dir)+".tmp-"+uuid.New().String())
	if err := os.Mkdir(tmp, 0o755); err != nil {
		return fmt.Errorf("creating temp model dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := writeJSON(filepath.Join(tmp, TokenizerFile), a.Vocabulary); err != nil {
		return err
	}
	labels := labelsFile{Labels: a.Labels.asMap(), MaxLen: a.MaxLen, Samples: a.Samples}
	if err := writeJSON(filepath.Join(tmp, LabelsFile), labels); err != nil {
		return err
	}
	if err := writeGob(filepath.Join(tmp, WeightsFile), a.Weights); err != nil {
		return err
	}

	var old string
	if _, err := os.Stat(dir); err == nil {
		old = filepath.Join(parent, "."+filepath.Base(dir)+".old-"+uuid.New().String())
		if err := os.Rename(dir, old); err != nil {
			return fmt.Errorf("moving previous model aside: %w", err)
		}
	}

	if err := os.Rename(tmp, dir); err != nil {
		if old != "" {
			os.Rename(old, dir)
		}
		return fmt.Errorf("publishing model dir: %w", err)
	}
	if old != "" {
		os.RemoveAll(old)
	}
	return nil
}

// LoadArtifacts reads a bundle written by SaveArtifacts. Any missing,
// malformed or mismatched file is an error.
func LoadArtifacts(dir string) (*Artifacts, error) {
	vocab := &Vocabulary{}
	if err := readJSON(filepath.Join(dir, TokenizerFile), vocab); err != nil {
		return nil, err
	}

	var lf labelsFile
	if err := readJSON(filepath.Join(dir, LabelsFile), &lf); err != nil {
		return nil, err
	}
	labels, err := labelIndexFromMap(lf.Labels)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, WeightsFile))
	if err != nil {
		return nil, fmt.Errorf("opening weights: %w", err)
	}
	defer f.Close()

	var net Network
	if err := gob.NewDecoder(f).Decode(&net); err != nil {
		return nil, fmt.Errorf("decoding weights: %w", err)
	}

	a := &Artifacts{Weights: &net, Vocabulary: vocab, Labels: labels, MaxLen: lf.MaxLen, Samples: lf.Samples}
	if err := a.check(); err != nil {
		return nil, err
	}
	return a, nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeGob(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
