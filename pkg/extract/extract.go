// Copyright 2025 The Doclens Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package extract turns uploaded documents into plain text. It handles the
// binary formats (PDF, Word, Excel) with native parsers and passes UTF-8
// text through unchanged. Uploads are parsed from memory; nothing touches
// the filesystem.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Format identifies a supported document format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDocx Format = "docx"
	FormatXlsx Format = "xlsx"
	FormatText Format = "text"

	// FormatUnknown means neither the filename nor the content identified
	// a supported format.
	FormatUnknown Format = ""
)

// Common extraction errors.
var (
	// ErrUnsupportedFormat is returned for formats doclens cannot parse.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmptyDocument is returned when extraction yields no text.
	ErrEmptyDocument = errors.New("document contains no extractable text")
)

// Document is the extraction result.
type Document struct {
	// Text is the extracted plain text.
	Text string `json:"text"`

	// Format is the detected source format.
	Format Format `json:"format"`

	// Pages is the page count for PDFs and the sheet count for
	// spreadsheets; zero for flat text.
	Pages int `json:"pages,omitempty"`

	// Words is the whitespace-separated word count of Text.
	Words int `json:"words"`
}

// zip container magic shared by docx and xlsx.
var zipMagic = []byte("PK\x03\x04")

// DetectFormat identifies a document's format from its filename extension,
// falling back to content sniffing when the extension is missing or
// unrecognized. Zip containers (docx, xlsx) cannot be told apart by magic
// bytes alone, so sniffing them requires the extension.
func DetectFormat(filename string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDocx
	case ".xlsx":
		return FormatXlsx
	case ".txt", ".md", ".text":
		return FormatText
	}

	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return FormatPDF
	}
	if bytes.HasPrefix(data, zipMagic) {
		return FormatUnknown
	}
	if utf8.Valid(data) {
		return FormatText
	}

	return FormatUnknown
}

// Extract parses data into plain text. The filename is only a format
// hint; content sniffing covers extension-less uploads.
func Extract(ctx context.Context, filename string, data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	var doc *Document
	var err error

	switch format := DetectFormat(filename, data); format {
	case FormatPDF:
		doc, err = extractPDF(ctx, data)
	case FormatDocx:
		doc, err = extractDocx(data)
	case FormatXlsx:
		doc, err = extractXlsx(data)
	case FormatText:
		doc, err = extractText(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(doc.Text) == "" {
		return nil, ErrEmptyDocument
	}
	doc.Words = len(strings.Fields(doc.Text))

	return doc, nil
}

// extractText validates and passes through flat text.
func extractText(data []byte) (*Document, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: text upload is not valid UTF-8", ErrUnsupportedFormat)
	}
	return &Document{Text: string(data), Format: FormatText}, nil
}
