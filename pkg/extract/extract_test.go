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

package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		data     []byte
		want     Format
	}{
		{"pdf extension", "report.pdf", nil, FormatPDF},
		{"pdf extension uppercase", "REPORT.PDF", nil, FormatPDF},
		{"docx extension", "notes.docx", nil, FormatDocx},
		{"xlsx extension", "sheet.xlsx", nil, FormatXlsx},
		{"txt extension", "readme.txt", nil, FormatText},
		{"md extension", "readme.md", nil, FormatText},
		{"pdf magic without extension", "upload", []byte("%PDF-1.7 rest"), FormatPDF},
		{"utf8 without extension", "upload", []byte("plain words"), FormatText},
		{"zip container without extension", "upload", []byte("PK\x03\x04stuff"), FormatUnknown},
		{"binary junk", "upload", []byte{0xff, 0xfe, 0x00, 0x01}, FormatUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectFormat(tc.filename, tc.data); got != tc.want {
				t.Errorf("DetectFormat(%q) = %q, want %q", tc.filename, got, tc.want)
			}
		})
	}
}

func TestExtractText(t *testing.T) {
	doc, err := Extract(context.Background(), "notes.txt", []byte("one two three\nfour five"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.Format != FormatText {
		t.Errorf("format = %q, want %q", doc.Format, FormatText)
	}
	if doc.Words != 5 {
		t.Errorf("words = %d, want 5", doc.Words)
	}
}

func TestExtractRejectsInvalidUTF8(t *testing.T) {
	_, err := Extract(context.Background(), "notes.txt", []byte{0xff, 0xfe, 0xfd})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExtractRejectsEmptyDocument(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("   \n\t  ")} {
		if _, err := Extract(context.Background(), "notes.txt", data); !errors.Is(err, ErrEmptyDocument) {
			t.Errorf("data %q: err = %v, want ErrEmptyDocument", data, err)
		}
	}
}

func TestExtractRejectsUnknownFormat(t *testing.T) {
	_, err := Extract(context.Background(), "archive.zip", []byte("PK\x03\x04junk"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExtractXlsx(t *testing.T) {
	f := excelize.NewFile()
	if err := f.SetCellValue("Sheet1", "A1", "quarterly"); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	if err := f.SetCellValue("Sheet1", "B1", "revenue"); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	if err := f.SetCellValue("Sheet1", "A2", 1234); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	doc, err := Extract(context.Background(), "report.xlsx", buf.Bytes())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.Format != FormatXlsx {
		t.Errorf("format = %q, want %q", doc.Format, FormatXlsx)
	}
	if doc.Pages != 1 {
		t.Errorf("sheets = %d, want 1", doc.Pages)
	}
	for _, want := range []string{"quarterly", "revenue", "1234"} {
		if !strings.Contains(doc.Text, want) {
			t.Errorf("text %q missing %q", doc.Text, want)
		}
	}
}

func TestExtractCorruptPDF(t *testing.T) {
	if _, err := Extract(context.Background(), "broken.pdf", []byte("%PDF-1.7 not actually a pdf")); err == nil {
		t.Fatal("expected error for corrupt PDF")
	}
}
