package export

import (
	"sort"
	"strconv"
	"time"

	"github.com/isfo/attestation-service/internal/importer"
	"github.com/isfo/attestation-service/internal/model"
	"github.com/isfo/attestation-service/internal/security"
)

// RequestsTable lays out requests sorted by group then name, so the PDF
// sections are contiguous.
func RequestsTable(reqs []model.AttestationRequest, loc *time.Location) Table {
	sorted := make([]model.AttestationRequest, len(reqs))
	copy(sorted, reqs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Group != sorted[j].Group {
			return sorted[i].Group < sorted[j].Group
		}
		if sorted[i].LastName != sorted[j].LastName {
			return sorted[i].LastName < sorted[j].LastName
		}
		return sorted[i].FirstName < sorted[j].FirstName
	})

	t := Table{
		Title:   "Demandes d'attestation",
		Sheet:   "Demandes",
		Keys:    []string{"first_name", "last_name", "cin", "phone", "student_group", "status", "created_at", "attestation_number"},
		Headers: []string{"Prénom", "Nom", "CIN", "Téléphone", "Groupe", "Statut", "Date de demande", "N° Attestation"},
		GroupBy: 4,
	}
	for _, r := range sorted {
		number := "-"
		if r.AttestationNumber != nil {
			number = strconv.FormatInt(*r.AttestationNumber, 10)
		}
		t.Rows = append(t.Rows, []string{
			r.FirstName, r.LastName, r.CIN, r.Phone, r.Group,
			r.Status.Label(), r.CreatedAt.In(loc).Format("02/01/2006"), number,
		})
	}
	return t
}

// StudentsTable uses the standard import column order so a re-import
// reproduces every required field.
func StudentsTable(students []model.Student) Table {
	t := Table{
		Title:   "Liste des étudiants",
		Sheet:   "Etudiants",
		GroupBy: 6,
	}
	for _, c := range importer.Columns {
		t.Keys = append(t.Keys, c.Key)
		t.Headers = append(t.Headers, c.Key)
	}
	for _, s := range students {
		t.Rows = append(t.Rows, []string{
			s.CIN, s.FirstName, s.LastName, s.BirthDate, s.FormationLevel, s.Speciality,
			s.Group, s.InscriptionNumber, s.FormationType, s.FormationMode, s.FormationYear,
		})
	}
	return t
}

// LoginAuditTable lays out enriched login attempts.
func LoginAuditTable(entries []security.Entry, loc *time.Location) Table {
	t := Table{
		Title:   "Logs de connexion",
		Sheet:   "Logs de connexion",
		Keys:    []string{"login_timestamp", "user_email", "name", "user_type", "success", "ip_address", "city", "country", "device_info"},
		Headers: []string{"Date/Heure", "Email", "Nom", "Type", "Succès", "Adresse IP", "Ville", "Pays", "Appareil"},
		GroupBy: -1,
	}
	for _, e := range entries {
		success := "Non"
		if e.Success {
			success = "Oui"
		}
		t.Rows = append(t.Rows, []string{
			e.Timestamp.In(loc).Format("02/01/2006 15:04:05"),
			e.Email,
			e.DisplayName(),
			security.UserTypeLabel(e.UserType),
			success,
			dash(e.IPAddress),
			dash(e.City),
			dash(e.Country),
			dash(e.DeviceInfo),
		})
	}
	return t
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
