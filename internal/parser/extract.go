package parser

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"pdf-chat/internal/models"
)

type format int

const (
	formatPDF format = iota
	formatDOCX
	formatXLSX
)

var (
	pdfMagic = []byte("%PDF")
	zipMagic = []byte("PK\x03\x04")

	wordTextRe = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>(.*?)</w:t>`)
	wordParaRe = regexp.MustCompile(`</w:p>`)
	xmlTagRe   = regexp.MustCompile(`<[^>]+>`)
)

// ReadFiles loads each path as a document named after its base name, keeping
// the order of paths.
func ReadFiles(paths []string) ([]models.Document, error) {
	docs := make([]models.Document, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		docs = append(docs, models.Document{Name: filepath.Base(p), Content: content})
	}
	return docs, nil
}

// ExtractText concatenates the text of every page of every document, in
// order, without inserting separators. The first document that cannot be
// read aborts the whole batch.
func ExtractText(docs []models.Document) (string, error) {
	var sb strings.Builder
	for i, doc := range docs {
		text, err := extractDocument(doc)
		if err != nil {
			return "", &models.ExtractionError{Index: i, Name: doc.Name, Err: err}
		}
		log.Debug().Int("index", i).Str("name", doc.Name).Int("chars", len(text)).Msg("Extracted document")
		sb.WriteString(text)
	}
	return sb.String(), nil
}

func extractDocument(doc models.Document) (text string, err error) {
	if len(doc.Content) == 0 {
		return "", errors.New("empty document")
	}
	// the PDF decoder panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed document: %v", r)
		}
	}()

	switch sniff(doc.Content) {
	case formatDOCX:
		return parseDOCX(doc.Content)
	case formatXLSX:
		return parseXLSX(doc.Content)
	default:
		return parsePDF(doc.Content)
	}
}

func sniff(content []byte) format {
	if bytes.HasPrefix(content, pdfMagic) {
		return formatPDF
	}
	if !bytes.HasPrefix(content, zipMagic) {
		return formatPDF
	}
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return formatPDF
	}
	for _, f := range zr.File {
		switch f.Name {
		case "word/document.xml":
			return formatDOCX
		case "xl/workbook.xml":
			return formatXLSX
		}
	}
	return formatPDF
}

func parsePDF(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		sb.WriteString(pageText)
	}
	return sb.String(), nil
}

func parseDOCX(content []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open DOCX: %w", err)
	}
	defer r.Close()

	return wordXMLText(r.Editable().GetContent()), nil
}

// wordXMLText keeps the text runs of a WordprocessingML body, one line per paragraph.
func wordXMLText(xml string) string {
	var sb strings.Builder
	for _, para := range wordParaRe.Split(xml, -1) {
		runs := wordTextRe.FindAllStringSubmatch(para, -1)
		if len(runs) == 0 {
			continue
		}
		for _, m := range runs {
			sb.WriteString(unescapeXML(xmlTagRe.ReplaceAllString(m[1], "")))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

var xmlUnescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string { return xmlUnescaper.Replace(s) }

func parseXLSX(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to open XLSX: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
		}
		sb.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
