package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

// LoadLexicon returns the built-in lexicon with any non-empty list from the
// YAML file at path replacing its default. An empty path yields the
// defaults unchanged.
func LoadLexicon(path string) (domain.Lexicon, error) {
	base := domain.DefaultLexicon()
	if strings.TrimSpace(path) == "" {
		return base, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Lexicon{}, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	override, err := parseLexicon(raw)
	if err != nil {
		return domain.Lexicon{}, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	return base.Merge(override), nil
}

func parseLexicon(raw []byte) (domain.Lexicon, error) {
	var lex domain.Lexicon
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&lex); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Lexicon{}, nil
		}
		return domain.Lexicon{}, err
	}
	return lex, nil
}
