// Package importer reads roster spreadsheets (xlsx, csv or json) into
// student rows, validating every row before any is returned.
package importer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/isfo/attestation-service/internal/model"
)

// Format is the file encoding of an import.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Layout selects the column mapping.
type Layout string

const (
	// LayoutStandard is the fixed column order of Columns.
	LayoutStandard Layout = "standard"
	// LayoutLegacy is the institutional base export.
	LayoutLegacy Layout = "legacy"
)

const (
	DefaultFormationType = "Résidentielle"
	DefaultFormationMode = "Diplômante"
)

var (
	// ErrUnsupportedFormat indicates an unknown file extension or format.
	ErrUnsupportedFormat = errors.New("unsupported import format")
	// ErrEmptyFile indicates no data rows.
	ErrEmptyFile = errors.New("import file is empty")
)

// Column describes one standard-layout column.
type Column struct {
	Key      string
	Label    string
	Required bool
}

// Columns is the standard layout, in file order.
var Columns = []Column{
	{Key: "cin", Label: "CIN", Required: true},
	{Key: "prenom", Label: "Prénom", Required: true},
	{Key: "nom", Label: "Nom", Required: true},
	{Key: "date_naissance", Label: "Date de Naissance", Required: true},
	{Key: "niveau_formation", Label: "Niveau de Formation", Required: true},
	{Key: "specialite", Label: "Spécialité", Required: true},
	{Key: "groupe", Label: "Groupe", Required: true},
	{Key: "numero_inscription", Label: "Numéro d'Inscription", Required: true},
	{Key: "type_formation", Label: "Type de Formation"},
	{Key: "mode_formation", Label: "Mode de Formation"},
	{Key: "annee_formation", Label: "Année de Formation", Required: true},
}

// Legacy layout column indexes (zero-based).
const (
	legacyInscription = 1
	legacyLastName    = 2
	legacyFirstName   = 3
	legacyLabel       = 8
	legacyGroup       = 10
	legacyBirthDate   = 14
	legacyCIN         = 21
)

// RowError is a validation failure on one file line (1-based, header = 1).
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ValidationError aggregates row failures.
type ValidationError struct {
	Rows []RowError
}

func (e *ValidationError) Error() string {
	if len(e.Rows) == 0 {
		return "import validation failed"
	}
	first := e.Rows[0]
	return fmt.Sprintf("import validation failed: line %d: %s (%d error(s))", first.Line, first.Message, len(e.Rows))
}

// Row is a parsed student and its source line.
type Row struct {
	Line    int
	Student model.Student
}

// Options controls parsing.
type Options struct {
	Format      Format
	Layout      Layout
	EmailDomain string
}

// FormatFromName infers the format from a file name.
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "xlsx", "xlsm":
		return FormatXLSX, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// Parse reads every row. Any invalid row fails the whole parse with a
// *ValidationError listing all invalid rows.
func Parse(r io.Reader, opts Options) ([]Row, error) {
	if opts.Layout == "" {
		opts.Layout = LayoutStandard
	}
	if opts.Layout == LayoutLegacy && opts.Format == FormatJSON {
		return nil, fmt.Errorf("%w: legacy layout requires xlsx or csv", ErrUnsupportedFormat)
	}

	var records [][]string
	var err error
	switch opts.Format {
	case FormatXLSX:
		records, err = readXLSX(r)
	case FormatCSV:
		records, err = readCSV(r)
	case FormatJSON:
		records, err = readJSON(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, opts.Format)
	}
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, ErrEmptyFile
	}

	var rows []Row
	var rowErrs []RowError
	for i, rec := range records[1:] {
		line := i + 2
		if blank(rec) {
			continue
		}
		var st model.Student
		var msg string
		if opts.Layout == LayoutLegacy {
			st, msg = legacyRow(rec)
		} else {
			st, msg = standardRow(rec)
		}
		if msg != "" {
			rowErrs = append(rowErrs, RowError{Line: line, Message: msg})
			continue
		}
		if st.Email == "" {
			st.Email = GeneratedEmail(st.InscriptionNumber, opts.EmailDomain)
		}
		rows = append(rows, Row{Line: line, Student: st})
	}
	if len(rowErrs) > 0 {
		return nil, &ValidationError{Rows: rowErrs}
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return rows, nil
}

// GeneratedEmail is the institutional address derived from the inscription number.
func GeneratedEmail(inscription, domain string) string {
	if domain == "" {
		domain = "ofppt-edu.ma"
	}
	return strings.ToLower(strings.TrimSpace(inscription)) + "@" + domain
}

func standardRow(rec []string) (model.Student, string) {
	get := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	for i, col := range Columns {
		if col.Required && get(i) == "" {
			return model.Student{}, fmt.Sprintf("le champ %q est requis", col.Label)
		}
	}
	birth, ok := ParseDate(get(3))
	if !ok {
		return model.Student{}, "format de date invalide (attendu: AAAA-MM-JJ ou JJ/MM/AAAA)"
	}
	return model.Student{
		CIN:               get(0),
		FirstName:         get(1),
		LastName:          get(2),
		BirthDate:         birth,
		FormationLevel:    get(4),
		Speciality:        get(5),
		Group:             get(6),
		InscriptionNumber: get(7),
		FormationType:     orDefault(get(8), DefaultFormationType),
		FormationMode:     orDefault(get(9), DefaultFormationMode),
		FormationYear:     get(10),
	}, ""
}

func legacyRow(rec []string) (model.Student, string) {
	get := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	inscription, last, first, cin := get(legacyInscription), get(legacyLastName), get(legacyFirstName), get(legacyCIN)
	if inscription == "" || last == "" || first == "" || cin == "" {
		return model.Student{}, "matricule, nom, prénom et CIN sont requis"
	}
	birth, ok := ParseDate(get(legacyBirthDate))
	if !ok {
		return model.Student{}, "date de naissance invalide"
	}
	info := ParseFormationInfo(get(legacyLabel), get(legacyGroup))
	return model.Student{
		CIN:               cin,
		FirstName:         first,
		LastName:          last,
		BirthDate:         birth,
		FormationLevel:    info.Level,
		Speciality:        info.Speciality,
		Group:             info.Group,
		InscriptionNumber: inscription,
		FormationType:     DefaultFormationType,
		FormationMode:     DefaultFormationMode,
		FormationYear:     info.Year,
	}, ""
}

// FormationInfo is what the legacy long label encodes.
type FormationInfo struct {
	Level      string
	Speciality string
	Group      string
	Year       string
}

var groupPatterns = []struct {
	prefix string
	re     *regexp.Regexp
}{
	{"IDOSR", regexp.MustCompile(`IDOSR.*?(\d+)`)},
	{"DEVOWFS", regexp.MustCompile(`DEVOWFS.*?(\d+)`)},
	{"DEV", regexp.MustCompile(`DEV.*?(\d+)`)},
	{"ID", regexp.MustCompile(`ID.*?(\d+)`)},
}

// ParseFormationInfo splits a label such as
// "DIA_IDOSR_TS_1A-Infrastructure Digitale (1A)-2025". The explicit group
// code wins over one derived from the label.
func ParseFormationInfo(label, code string) FormationInfo {
	parts := strings.Split(label, "-")
	if len(parts) < 3 {
		return FormationInfo{
			Level:      "Technicien Spécialisé",
			Speciality: "Informatique",
			Group:      orDefault(code, "DEV101"),
			Year:       "2025",
		}
	}
	codePart := parts[0]
	info := FormationInfo{
		Level:      "Technicien Spécialisé",
		Speciality: strings.TrimSpace(parts[1]),
		Year:       strings.TrimSpace(parts[2]),
		Group:      code,
	}
	if !strings.Contains(codePart, "TS") && strings.Contains(codePart, "T") {
		info.Level = "Technicien"
	}
	if info.Group == "" {
		for _, p := range groupPatterns {
			if !strings.Contains(codePart, p.prefix) {
				continue
			}
			if m := p.re.FindStringSubmatch(codePart); m != nil {
				info.Group = p.prefix + m[1]
			}
			break
		}
	}
	if info.Group == "" {
		info.Group = "DEV101"
	}
	return info
}

// ParseDate normalises YYYY-MM-DD, DD/MM/YYYY (optionally followed by a
// time) and spreadsheet serial numbers to YYYY-MM-DD.
func ParseDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if head, _, ok := strings.Cut(s, " "); ok {
		s = head
	}
	for _, layout := range []string{"2006-01-02", "02/01/2006", "2/1/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	// Raw values keep date cells as serials, which ParseDate understands,
	// instead of locale-dependent formatted strings.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	if first, _, _ := bytes.Cut(data, []byte("\n")); bytes.Count(first, []byte(";")) > bytes.Count(first, []byte(",")) {
		cr.Comma = ';'
	}
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return records, nil
}

// readJSON accepts an array of objects keyed by standard column keys and
// returns it as header + records.
func readJSON(r io.Reader) ([][]string, error) {
	var items []map[string]any
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	header := make([]string, len(Columns))
	for i, c := range Columns {
		header[i] = c.Key
	}
	records := [][]string{header}
	for _, item := range items {
		rec := make([]string, len(Columns))
		for i, c := range Columns {
			rec[i] = jsonString(item[c.Key])
		}
		records = append(records, rec)
	}
	return records, nil
}

func jsonString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
