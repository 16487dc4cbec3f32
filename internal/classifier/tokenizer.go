package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// PadID fills positions past the end of a sequence.
	PadID = 0
	// OOVID is assigned to tokens that were not seen at training time.
	OOVID = 1

	oovToken = "<OOV>"

	// characters dropped before splitting, same set the Keras tokenizer filters
	filterChars = "!\"#$%&()*+,-./:;<=>?@[\\]^_`{|}~\t\n\r"
)

// Tokenize lowercases text, replaces punctuation with spaces and splits on whitespace.
func Tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(filterChars, r) {
			return ' '
		}
		return r
	}, strings.ToLower(text))
	return strings.Fields(cleaned)
}

// Vocabulary maps tokens to integer ids. It is built once from the training
// texts and never modified afterwards.
type Vocabulary struct {
	index map[string]int
	words []string
}

// BuildVocabulary assigns ids in first-occurrence order, starting after the
// reserved padding and OOV ids.
func BuildVocabulary(texts []string) *Vocabulary {
	v := &Vocabulary{
		index: map[string]int{oovToken: OOVID},
		words: []string{oovToken},
	}
	for _, text := range texts {
		for _, tok := range Tokenize(text) {
			if _, ok := v.index[tok]; ok {
				continue
			}
			v.words = append(v.words, tok)
			v.index[tok] = len(v.words)
		}
	}
	return v
}

// Len is the number of distinct tokens plus the reserved OOV slot.
func (v *Vocabulary) Len() int {
	return len(v.words)
}

// ID returns the id of tok, or OOVID when it is unknown.
func (v *Vocabulary) ID(tok string) int {
	if id, ok := v.index[tok]; ok {
		return id
	}
	return OOVID
}

// Encode converts text to a sequence of token ids.
func (v *Vocabulary) Encode(text string) []int {
	toks := Tokenize(text)
	seq := make([]int, len(toks))
	for i, tok := range toks {
		seq[i] = v.ID(tok)
	}
	return seq
}

type vocabularyFile struct {
	OOVToken  string         `json:"oov_token"`
	WordIndex map[string]int `json:"word_index"`
}

func (v *Vocabulary) MarshalJSON() ([]byte, error) {
	return json.Marshal(vocabularyFile{OOVToken: oovToken, WordIndex: v.index})
}

func (v *Vocabulary) UnmarshalJSON(data []byte) error {
	var f vocabularyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.WordIndex[oovToken] != OOVID {
		return fmt.Errorf("vocabulary: missing reserved %s id", oovToken)
	}

	words := make([]string, len(f.WordIndex))
	for word, id := range f.WordIndex {
		if id < 1 || id > len(words) || words[id-1] != "" {
			return fmt.Errorf("vocabulary: invalid id %d for %q", id, word)
		}
		words[id-1] = word
	}

	v.index = f.WordIndex
	v.words = words
	return nil
}
