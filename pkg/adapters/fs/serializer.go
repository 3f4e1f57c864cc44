package fs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/speaknote/pkg/core"
)

// frontmatter is the YAML header of a note file. The body is the content.
type frontmatter struct {
	Title   string    `yaml:"title"`
	Owner   string    `yaml:"owner"`
	Created time.Time `yaml:"created"`
	Updated time.Time `yaml:"updated"`
	Version int64     `yaml:"version"`
}

// serialize converts a note to Markdown with a YAML frontmatter block.
func serialize(n core.Note) ([]byte, error) {
	var buf bytes.Buffer

	fm := frontmatter{
		Title:   n.Title,
		Owner:   n.OwnerID,
		Created: n.CreatedAt.UTC(),
		Updated: n.UpdatedAt.UTC(),
		Version: n.Version,
	}
	meta, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frontmatter: %w", err)
	}

	buf.WriteString("---\n")
	buf.Write(meta)
	buf.WriteString("---\n")
	buf.WriteString(n.Content)
	if !strings.HasSuffix(n.Content, "\n") {
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// parse reads a note file: a frontmatter block followed by the content body.
// The note's ID is not stored in the file; the caller sets it from the
// filename.
func parse(r io.Reader) (core.Note, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Note{}, err
	}

	if !bytes.HasPrefix(data, []byte("---\n")) && !bytes.HasPrefix(data, []byte("---\r\n")) {
		return core.Note{}, errors.New("note file has no frontmatter block")
	}

	rest := data[3:]
	parts := bytes.SplitN(rest, []byte("---"), 2)
	if len(parts) != 2 {
		return core.Note{}, errors.New("frontmatter started but no closing delimiter found")
	}

	var fm frontmatter
	if err := yaml.Unmarshal(parts[0], &fm); err != nil {
		return core.Note{}, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	content := strings.TrimPrefix(string(parts[1]), "\n")
	content = strings.TrimPrefix(content, "\r\n")
	content = strings.TrimSuffix(content, "\n")

	return core.Note{
		Title:     fm.Title,
		Content:   content,
		OwnerID:   fm.Owner,
		CreatedAt: fm.Created,
		UpdatedAt: fm.Updated,
		Version:   fm.Version,
	}, nil
}
