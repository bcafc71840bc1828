package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Source is a schema or data description that can be read, identified by a
// descriptor. Two sources with equal descriptors describe the same content.
type Source interface {
	Descriptor() string
	Open() (io.ReadCloser, error)
}

type fileSource struct {
	path string
}

// FileSource returns a Source reading the file at path.
func FileSource(path string) Source {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return fileSource{path: filepath.Clean(path)}
}

func (f fileSource) Descriptor() string { return "file:" + f.path }

func (f fileSource) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

type bytesSource struct {
	data   []byte
	digest string
}

// BytesSource returns a Source over in-memory content. Its descriptor is the
// content digest.
func BytesSource(data []byte) Source {
	sum := sha256.Sum256(data)
	return bytesSource{data: data, digest: hex.EncodeToString(sum[:])}
}

func (b bytesSource) Descriptor() string { return "sha256:" + b.digest }

func (b bytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

// document is the on-disk layout of a schema description.
type document struct {
	Tables []*Table `yaml:"tables"`
}

// ReadSchema decodes a YAML (or JSON) schema description and validates it.
// Any malformed input fails with a SchemaError.
func ReadSchema(src Source) (*Schema, error) {
	r, err := src.Open()
	if err != nil {
		return nil, &SchemaError{Reason: "failed to open schema source", Err: err}
	}
	defer r.Close()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, &SchemaError{Reason: "failed to decode schema", Err: err}
	}
	if len(doc.Tables) == 0 {
		return nil, &SchemaError{Reason: "schema declares no tables"}
	}

	return New(doc.Tables...)
}

// ReadData decodes a YAML (or JSON) mapping of table name to rows into a data
// set shaped by s. Tables and columns that s does not declare are ignored.
func ReadData(src Source, s *Schema) (*DataSet, error) {
	r, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open data source: %w", err)
	}
	defer r.Close()

	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}

	ds := NewDataSet(s)
	if len(doc.Content) == 0 {
		return ds, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("failed to decode data: expected a mapping of table names, got line %d", root.Line)
	}

	// Mapping nodes alternate key and value; decoding pair by pair keeps the
	// document's table order.
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		if _, ok := s.Table(name); !ok {
			continue
		}

		var rows []Row
		if err := root.Content[i+1].Decode(&rows); err != nil {
			return nil, fmt.Errorf("failed to decode rows of table %s: %w", name, err)
		}
		if err := ds.Append(name, rows...); err != nil {
			return nil, err
		}
	}

	return ds, nil
}

// WriteData encodes the data set as YAML, one key per table in schema order.
func WriteData(w io.Writer, ds *DataSet) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range ds.Schema().TableNames() {
		rows := ds.Rows(name)
		if rows == nil {
			rows = []Row{}
		}

		value := &yaml.Node{}
		if err := value.Encode(rows); err != nil {
			return fmt.Errorf("failed to encode rows of table %s: %w", name, err)
		}
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: name}, value)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	return enc.Close()
}

// WriteSchema encodes the schema in the layout ReadSchema accepts.
func WriteSchema(w io.Writer, s *Schema) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(document{Tables: s.Tables()}); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}
	return enc.Close()
}
