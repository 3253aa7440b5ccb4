package iotrace

import (
	"bytes"
	"compress/flate"
	"encoding/json"
	"fmt"
	"io"
)

// artifactDoc is the self-describing text encoding wrapped by the
// streaming frame-compressed container (spec.md §9: "a streaming-
// compressed wrapper around a self-describing text encoding... reject
// artifacts with unknown required fields; unknown optional fields are
// ignored"). Required fields are tagged without `omitempty`; optional
// fields use it, matching the json package's natural "ignore unknown
// fields on decode, tolerate absent optional fields" behavior.
type artifactDoc struct {
	FormatVersion int    `json:"format_version"`
	Hash          uint64 `json:"hash"`
	Exe           string `json:"exe"`
	Comm          string `json:"comm"`
	Cmdline       string `json:"cmdline"`
	CreatedAtUnix int64  `json:"created_at_unix"`

	TraceStoppedAtUnix *int64 `json:"trace_stopped_at_unix,omitempty"`

	Files           []string `json:"files"`
	TraceLog        []Entry  `json:"trace_log"`
	AccumulatedSize int64    `json:"accumulated_size"`
	Optimized       bool     `json:"trace_log_optimized,omitempty"`
}

const formatVersion = 1

// Marshal renders l as the pretty-printed self-describing text document,
// wrapped in a DEFLATE frame. This is the byte sequence written to
// <hash>.trace.
func (l *Log) Marshal() ([]byte, error) {
	l.mu.Lock()
	doc := artifactDoc{
		FormatVersion:   formatVersion,
		Hash:            l.Hash,
		Exe:             l.Exe,
		Comm:            l.Comm,
		Cmdline:         l.Cmdline,
		CreatedAtUnix:   l.CreatedAt.Unix(),
		Files:           append([]string(nil), l.Files...),
		TraceLog:        append([]Entry(nil), l.TraceLog...),
		AccumulatedSize: l.AccumulatedSize,
		Optimized:       l.Optimized,
	}
	if l.TraceStoppedAt != nil {
		u := l.TraceStoppedAt.Unix()
		doc.TraceStoppedAtUnix = &u
	}
	l.mu.Unlock()

	text, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding trace artifact: %w", err)
	}

	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("opening compression frame: %w", err)
	}
	if _, err := fw.Write(text); err != nil {
		return nil, fmt.Errorf("writing compressed trace artifact: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("closing compression frame: %w", err)
	}

	return buf.Bytes(), nil
}

// ErrUnsupportedFormat is returned by Unmarshal when an artifact declares
// a format_version newer than this build understands.
var ErrUnsupportedFormat = fmt.Errorf("iotrace: artifact format_version is newer than this build supports")

// Unmarshal decodes a compressed artifact produced by Marshal back into a
// Log. Unknown optional fields are ignored by the underlying
// encoding/json decoder; an unrecognized format_version is rejected since
// it indicates a required-field schema change this build cannot honor.
func Unmarshal(data []byte) (*Log, error) {
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()

	text, err := io.ReadAll(fr)
	if err != nil {
		return nil, fmt.Errorf("decompressing trace artifact: %w", err)
	}

	var doc artifactDoc
	if err := json.Unmarshal(text, &doc); err != nil {
		return nil, fmt.Errorf("parsing trace artifact: %w", err)
	}

	if doc.FormatVersion > formatVersion {
		return nil, ErrUnsupportedFormat
	}

	l := &Log{
		Hash:            doc.Hash,
		Exe:             doc.Exe,
		Comm:            doc.Comm,
		Cmdline:         doc.Cmdline,
		CreatedAt:       unixTime(doc.CreatedAtUnix),
		Files:           doc.Files,
		TraceLog:        doc.TraceLog,
		AccumulatedSize: doc.AccumulatedSize,
		Optimized:       doc.Optimized,
		FileMap:         make(map[string]int, len(doc.Files)),
	}
	for i, f := range doc.Files {
		l.FileMap[f] = i
	}
	if doc.TraceStoppedAtUnix != nil {
		t := unixTime(*doc.TraceStoppedAtUnix)
		l.TraceStoppedAt = &t
	}

	return l, nil
}
