package importer

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

const standardCSV = "\xef\xbb\xbfcin,prenom,nom,date_naissance,niveau_formation,specialite,groupe,numero_inscription,type_formation,mode_formation,annee_formation\n" +
	"AB123,Karim,Idrissi,2000-01-15,Technicien Spécialisé,Développement Digital,DEV101,2001,,,2025\n" +
	"CD456,Salma,Bennani,22/03/2001,Technicien Spécialisé,Infrastructure Digitale,ID102,2002,Alternance,Qualifiante,2025\n" +
	",,,,,,,,,,\n"

func TestParseStandardCSV(t *testing.T) {
	t.Parallel()

	rows, err := Parse(strings.NewReader(standardCSV), Options{Format: FormatCSV, EmailDomain: "ofppt-edu.ma"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	karim := rows[0].Student
	if karim.CIN != "AB123" || karim.Email != "2001@ofppt-edu.ma" || karim.BirthDate != "2000-01-15" {
		t.Errorf("karim = %+v", karim)
	}
	if karim.FormationType != DefaultFormationType || karim.FormationMode != DefaultFormationMode {
		t.Errorf("defaults not applied: %+v", karim)
	}
	salma := rows[1].Student
	if salma.BirthDate != "2001-03-22" || salma.FormationType != "Alternance" || rows[1].Line != 3 {
		t.Errorf("salma = %+v line %d", salma, rows[1].Line)
	}
}

func TestParseAbortsOnAnyInvalidRow(t *testing.T) {
	t.Parallel()

	bad := standardCSV + "EF789,Youssef,,2001-01-01,TS,Dev,DEV101,2003,,,2025\n" +
		"GH000,Nadia,Alaoui,2001.01.01,TS,Dev,DEV101,2004,,,2025\n"
	_, err := Parse(strings.NewReader(bad), Options{Format: FormatCSV})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Parse() error = %v, want ValidationError", err)
	}
	if len(verr.Rows) != 2 || verr.Rows[0].Line != 5 || verr.Rows[1].Line != 6 {
		t.Errorf("Rows = %+v", verr.Rows)
	}
}

func TestParseSemicolonCSV(t *testing.T) {
	t.Parallel()

	data := "cin;prenom;nom;date_naissance;niveau_formation;specialite;groupe;numero_inscription;type_formation;mode_formation;annee_formation\n" +
		"AB123;Karim;Idrissi;2000-01-15;TS;Dev, Web;DEV101;2001;;;2025\n"
	rows, err := Parse(strings.NewReader(data), Options{Format: FormatCSV})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rows[0].Student.Speciality != "Dev, Web" {
		t.Errorf("Speciality = %q", rows[0].Student.Speciality)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	data := `[{"cin":"AB123","prenom":"Karim","nom":"Idrissi","date_naissance":"2000-01-15","niveau_formation":"TS",
		"specialite":"Dev","groupe":"DEV101","numero_inscription":2001,"annee_formation":2025}]`
	rows, err := Parse(strings.NewReader(data), Options{Format: FormatJSON, EmailDomain: "isfo.ma"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if st := rows[0].Student; st.InscriptionNumber != "2001" || st.FormationYear != "2025" || st.Email != "2001@isfo.ma" {
		t.Errorf("student = %+v", st)
	}
}

func legacyRecord(inscription, last, first, label, group, birth, cin string) []string {
	rec := make([]string, 23)
	rec[legacyInscription] = inscription
	rec[legacyLastName] = last
	rec[legacyFirstName] = first
	rec[legacyLabel] = label
	rec[legacyGroup] = group
	rec[legacyBirthDate] = birth
	rec[legacyCIN] = cin
	return rec
}

func TestParseLegacyXLSX(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	header := make([]string, 23)
	header[legacyInscription] = "MatriculeEtudiant"
	rows := [][]string{
		header,
		legacyRecord("2001", "IDRISSI", "KARIM", "DIA_IDOSR_TS_1A-Infrastructure Digitale option Systèmes et Réseaux (1A)-2025", "", "15/01/2000 00:00:00", "AB123"),
		legacyRecord("2002", "BENNANI", "SALMA", "DIA_DEV_TS_2A-Développement Digital-2024", "DEV202", "2001-03-22", "CD456"),
	}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &rows[i]); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}

	got, err := Parse(&buf, Options{Format: FormatXLSX, Layout: LayoutLegacy})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	karim := got[0].Student
	if karim.FirstName != "KARIM" || karim.BirthDate != "2000-01-15" || karim.Email != "2001@ofppt-edu.ma" {
		t.Errorf("karim = %+v", karim)
	}
	if karim.Speciality != "Infrastructure Digitale option Systèmes et Réseaux (1A)" || karim.FormationYear != "2025" {
		t.Errorf("karim formation = %+v", karim)
	}
	if got[1].Student.Group != "DEV202" {
		t.Errorf("explicit group lost: %+v", got[1].Student)
	}
}

func TestParseFormationInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label, code string
		want        FormationInfo
	}{
		{
			label: "DIA_IDOSR_TS_1A-Infrastructure Digitale-2025",
			want:  FormationInfo{Level: "Technicien Spécialisé", Speciality: "Infrastructure Digitale", Group: "IDOSR1", Year: "2025"},
		},
		{
			label: "DEVOWFS_T_201-Full Stack-2024",
			want:  FormationInfo{Level: "Technicien", Speciality: "Full Stack", Group: "DEVOWFS201", Year: "2024"},
		},
		{
			label: "DIA_DEV_TS_2A-Développement Digital-2024", code: "DEV205",
			want: FormationInfo{Level: "Technicien Spécialisé", Speciality: "Développement Digital", Group: "DEV205", Year: "2024"},
		},
		{
			label: "garbage", code: "",
			want: FormationInfo{Level: "Technicien Spécialisé", Speciality: "Informatique", Group: "DEV101", Year: "2025"},
		},
	}
	for _, tt := range tests {
		if got := ParseFormationInfo(tt.label, tt.code); got != tt.want {
			t.Errorf("ParseFormationInfo(%q, %q) = %+v, want %+v", tt.label, tt.code, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2000-01-15", "2000-01-15", true},
		{"15/01/2000", "2000-01-15", true},
		{"5/1/2000 00:00:00", "2000-01-05", true},
		{"36540", "2000-01-15", true},
		{"2000/01/15", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseDate(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatFromName(t *testing.T) {
	t.Parallel()

	if f, err := FormatFromName("Base ISFO.XLSX"); err != nil || f != FormatXLSX {
		t.Errorf("FormatFromName(xlsx) = %q, %v", f, err)
	}
	if _, err := FormatFromName("roster.xls"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("FormatFromName(xls) error = %v", err)
	}
}
