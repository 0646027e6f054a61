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
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// xlsxCellCap bounds how many non-empty cells are read per workbook, so a
// giant spreadsheet cannot balloon the extracted text.
const xlsxCellCap = 5000

// docx content arrives as WordprocessingML; paragraph boundaries become
// newlines and the remaining tags are stripped.
var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>`)
	xmlTag           = regexp.MustCompile(`<[^>]+>`)
)

// extractDocx pulls text out of a Word document.
func extractDocx(data []byte) (*Document, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Word document: %w", err)
	}
	defer doc.Close()

	raw := doc.Editable().GetContent()
	text := docxParagraphEnd.ReplaceAllString(raw, "\n")
	text = xmlTag.ReplaceAllString(text, "")

	paragraphs := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			paragraphs++
		}
	}

	return &Document{
		Text:   strings.TrimSpace(text),
		Format: FormatDocx,
		Pages:  paragraphs,
	}, nil
}

// extractXlsx pulls cell text out of an Excel workbook, sheet by sheet.
func extractXlsx(data []byte) (*Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Excel document: %w", err)
	}
	defer f.Close()

	var parts []string
	sheets := f.GetSheetList()
	cells := 0

	for _, sheetName := range sheets {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}

		var b strings.Builder
		for _, row := range rows {
			if cells >= xlsxCellCap {
				break
			}
			var rowText []string
			for _, cell := range row {
				if text := strings.TrimSpace(cell); text != "" {
					rowText = append(rowText, text)
					cells++
				}
			}
			if len(rowText) > 0 {
				b.WriteString(strings.Join(rowText, " "))
				b.WriteString("\n")
			}
		}

		if text := strings.TrimSpace(b.String()); text != "" {
			parts = append(parts, text)
		}
	}

	return &Document{
		Text:   strings.Join(parts, "\n\n"),
		Format: FormatXlsx,
		Pages:  len(sheets),
	}, nil
}
