package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/isfo/attestation-service/internal/importer"
	"github.com/isfo/attestation-service/internal/model"
	"github.com/isfo/attestation-service/internal/security"
)

var exportDay = time.Date(2025, 6, 2, 23, 30, 0, 0, time.UTC)

func sampleStudents() []model.Student {
	return []model.Student{
		{
			CIN: "AB123", FirstName: "Karim", LastName: "Idrissi", BirthDate: "2000-01-15",
			FormationLevel: "Technicien Spécialisé", Speciality: "Développement Digital", Group: "DEV101",
			InscriptionNumber: "2001", FormationType: "Résidentielle", FormationMode: "Diplômante", FormationYear: "2025",
		},
		{
			CIN: "CD456", FirstName: "Salma", LastName: "Bennani", BirthDate: "2001-03-22",
			FormationLevel: "Technicien", Speciality: "Infrastructure, Réseaux", Group: "ID102",
			InscriptionNumber: "2002", FormationType: "Alternance", FormationMode: "Qualifiante", FormationYear: "2024",
		},
	}
}

func requiredFields(s model.Student) []string {
	return []string{s.CIN, s.FirstName, s.LastName, s.BirthDate, s.FormationLevel, s.Speciality, s.Group, s.InscriptionNumber, s.FormationYear}
}

func TestStudentsRoundTrip(t *testing.T) {
	t.Parallel()

	for _, f := range []struct {
		export Format
		imp    importer.Format
	}{
		{FormatXLSX, importer.FormatXLSX},
		{FormatCSV, importer.FormatCSV},
		{FormatJSON, importer.FormatJSON},
	} {
		t.Run(string(f.export), func(t *testing.T) {
			t.Parallel()
			students := sampleStudents()
			var buf bytes.Buffer
			if err := Write(&buf, f.export, StudentsTable(students)); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			rows, err := importer.Parse(&buf, importer.Options{Format: f.imp})
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(rows) != len(students) {
				t.Fatalf("rows = %d, want %d", len(rows), len(students))
			}
			for i, r := range rows {
				got, want := requiredFields(r.Student), requiredFields(students[i])
				if strings.Join(got, "|") != strings.Join(want, "|") {
					t.Errorf("row %d = %v, want %v", i, got, want)
				}
			}
		})
	}
}

func TestRequestsTable(t *testing.T) {
	t.Parallel()

	n := int64(7)
	reqs := []model.AttestationRequest{
		{FirstName: "Salma", LastName: "Bennani", Group: "DEV102", Status: model.StatusPending, CreatedAt: exportDay},
		{FirstName: "Karim", LastName: "Idrissi", Group: "DEV101", Status: model.StatusApproved, AttestationNumber: &n, CreatedAt: exportDay},
	}
	casablanca := time.FixedZone("Africa/Casablanca", 3600)
	tbl := RequestsTable(reqs, casablanca)

	if tbl.Rows[0][0] != "Karim" {
		t.Fatalf("rows not grouped: %v", tbl.Rows)
	}
	if got := tbl.Rows[0]; got[5] != "Approuvé" || got[6] != "03/06/2025" || got[7] != "7" {
		t.Errorf("approved row = %v", got)
	}
	if got := tbl.Rows[1]; got[5] != "En attente" || got[7] != "-" {
		t.Errorf("pending row = %v", got)
	}
}

func TestWriteFormats(t *testing.T) {
	t.Parallel()

	tbl := RequestsTable([]model.AttestationRequest{
		{FirstName: "Karim", LastName: "Idrissi", CIN: "AB123", Group: "DEV101", Status: model.StatusRejected, CreatedAt: exportDay},
	}, time.UTC)

	var pdf bytes.Buffer
	if err := Write(&pdf, FormatPDF, tbl); err != nil {
		t.Fatalf("Write(pdf) error = %v", err)
	}
	if !bytes.HasPrefix(pdf.Bytes(), []byte("%PDF-")) {
		t.Errorf("pdf output missing header")
	}

	var txt bytes.Buffer
	if err := Write(&txt, FormatTXT, tbl); err != nil {
		t.Fatalf("Write(txt) error = %v", err)
	}
	if !strings.Contains(txt.String(), "Téléphone") || !strings.Contains(txt.String(), "Rejeté") {
		t.Errorf("txt output = %s", txt.String())
	}

	var js bytes.Buffer
	if err := Write(&js, FormatJSON, tbl); err != nil {
		t.Fatal(err)
	}
	var objs []map[string]string
	if err := json.Unmarshal(js.Bytes(), &objs); err != nil || objs[0]["cin"] != "AB123" {
		t.Errorf("json output = %s (%v)", js.String(), err)
	}

	if err := Write(&js, Format("docx"), tbl); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Write(docx) error = %v", err)
	}
}

func TestLoginAuditXLSX(t *testing.T) {
	t.Parallel()

	entries := []security.Entry{{
		LoginAudit: model.LoginAudit{
			Email: "2001@ofppt-edu.ma", UserType: model.UserTypeStudent, Success: true,
			IPAddress: "41.2.3.4", Timestamp: exportDay,
		},
		StudentFirstName: "Karim",
		StudentLastName:  "Idrissi",
	}}
	var buf bytes.Buffer
	if err := Write(&buf, FormatXLSX, LoginAuditTable(entries, time.UTC)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := f.GetRows("Logs de connexion")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0][0] != "Date/Heure" {
		t.Fatalf("rows = %v", rows)
	}
	if got := rows[1]; got[2] != "Karim Idrissi" || got[3] != "Étudiant" || got[4] != "Oui" || got[6] != "-" {
		t.Errorf("row = %v", got)
	}
}

func TestFileName(t *testing.T) {
	t.Parallel()

	if got := FileName("demandes", FormatPDF, exportDay); got != "demandes_2025-06-02.pdf" {
		t.Errorf("FileName() = %q", got)
	}
	if _, err := ParseFormat("XLSX"); err != nil {
		t.Errorf("ParseFormat(XLSX) error = %v", err)
	}
}
