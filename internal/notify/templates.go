package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/isfo/attestation-service/internal/model"
)

const (
	subjectVerification = "Code de vérification - Demande d'attestation"
	subjectApproved     = "Attestation approuvée - OFPPT ISFO"
	subjectRejected     = "Demande d'attestation rejetée - OFPPT ISFO"
)

const layout = `{{define "frame"}}<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
{{template "body" .}}
<div style="border-top: 1px solid #e2e8f0; padding-top: 20px; margin-top: 30px;">
{{if .Verification}}<p style="margin: 0 0 10px 0; color: #64748b; font-size: 14px;">Si vous n'avez pas fait cette demande, ignorez cet email.</p>{{end}}
<p style="margin: 0; font-size: 12px; color: #94a3b8; text-align: center;">{{.Footer}}</p>
</div>
</div>{{end}}`

const verificationBody = `{{define "body"}}<div style="text-align: center; margin-bottom: 30px;"><h1 style="color: #2563eb; margin: 0;">Code de vérification</h1></div>
<div style="background: #f8fafc; padding: 25px; border-radius: 8px; margin: 20px 0;">
<p style="margin: 0 0 15px 0; font-size: 16px;">Bonjour <strong>{{.FirstName}} {{.LastName}}</strong>,</p>
<p style="margin: 0 0 20px 0; color: #64748b;">Votre code de vérification pour la demande d'attestation est :</p>
<div style="background: #ffffff; padding: 20px; text-align: center; border-radius: 6px; border: 2px solid #e2e8f0; margin: 20px 0;">
<span style="font-size: 32px; font-weight: bold; letter-spacing: 3px; color: #2563eb; font-family: monospace;">{{.Code}}</span>
</div>
<p style="margin: 20px 0 0 0; font-size: 14px; color: #dc2626;">Ce code expire dans {{.ExpiresInMinutes}} minutes.</p>
</div>{{end}}`

const statusBody = `{{define "body"}}{{if .Approved}}<div style="text-align: center; margin-bottom: 30px;"><h1 style="color: #059669; margin: 0;">Attestation Approuvée</h1></div>
<div style="background: #f0fdf4; padding: 25px; border-radius: 8px; border-left: 4px solid #059669; margin: 20px 0;">
<p style="margin: 0 0 15px 0; font-size: 16px;">Bonjour <strong>{{.FirstName}} {{.LastName}}</strong>,</p>
<p style="margin: 0 0 15px 0; color: #166534;">Excellente nouvelle ! Votre demande d'attestation a été <strong>approuvée</strong>.</p>
{{template "details" .}}
<p style="margin: 15px 0 0 0; color: #166534;"><strong>Veuillez vous présenter à la direction pour récupérer votre attestation.</strong></p>
</div>{{else}}<div style="text-align: center; margin-bottom: 30px;"><h1 style="color: #dc2626; margin: 0;">Demande Rejetée</h1></div>
<div style="background: #fef2f2; padding: 25px; border-radius: 8px; border-left: 4px solid #dc2626; margin: 20px 0;">
<p style="margin: 0 0 15px 0; font-size: 16px;">Bonjour <strong>{{.FirstName}} {{.LastName}}</strong>,</p>
<p style="margin: 0 0 15px 0; color: #991b1b;">Nous regrettons de vous informer que votre demande d'attestation a été <strong>rejetée</strong>.</p>
{{template "details" .}}
<p style="margin: 15px 0 0 0; color: #991b1b;"><strong>Veuillez vous présenter à la direction pour plus d'informations.</strong></p>
</div>{{end}}{{end}}
{{define "details"}}<div style="background: #ffffff; padding: 15px; border-radius: 6px; margin: 15px 0;">
<p style="margin: 0 0 10px 0; font-weight: bold;">Détails de votre demande :</p>
<p style="margin: 5px 0; color: #374151;"><strong>CIN :</strong> {{.CIN}}</p>
<p style="margin: 5px 0; color: #374151;"><strong>Groupe :</strong> {{.Group}}</p>
<p style="margin: 5px 0; color: #374151;"><strong>Date de demande :</strong> {{.RequestedOn}}</p>
{{if .AttestationNumber}}<p style="margin: 5px 0; color: #374151;"><strong>N° Attestation :</strong> {{.AttestationNumber}}</p>{{end}}
{{if .Reason}}<p style="margin: 10px 0 0 0; color: #991b1b;"><strong>Motif :</strong> {{.Reason}}</p>{{end}}
</div>{{end}}`

var (
	verificationTmpl = template.Must(template.Must(template.New("email").Parse(layout)).Parse(verificationBody))
	statusTmpl       = template.Must(template.Must(template.New("email").Parse(layout)).Parse(statusBody))
)

// VerificationData fills the verification code email.
type VerificationData struct {
	FirstName        string
	LastName         string
	Code             string
	ExpiresInMinutes int
	Footer           string
}

// StatusData fills the approval and rejection emails.
type StatusData struct {
	FirstName         string
	LastName          string
	CIN               string
	Group             string
	RequestedOn       string
	AttestationNumber string
	Reason            string
	Approved          bool
	Footer            string
}

// RenderVerification builds the verification code email.
func RenderVerification(to string, d VerificationData) (Email, error) {
	var buf bytes.Buffer
	err := verificationTmpl.ExecuteTemplate(&buf, "frame", struct {
		VerificationData
		Verification bool
	}{d, true})
	if err != nil {
		return Email{}, fmt.Errorf("render verification email: %w", err)
	}
	return Email{To: []string{to}, Subject: subjectVerification, HTML: buf.String()}, nil
}

// RenderStatus builds the approval or rejection email for a terminal status.
func RenderStatus(to string, status model.Status, d StatusData) (Email, error) {
	var subject string
	switch status {
	case model.StatusApproved:
		subject, d.Approved = subjectApproved, true
	case model.StatusRejected:
		subject, d.Approved = subjectRejected, false
	default:
		return Email{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var buf bytes.Buffer
	err := statusTmpl.ExecuteTemplate(&buf, "frame", struct {
		StatusData
		Verification bool
	}{d, false})
	if err != nil {
		return Email{}, fmt.Errorf("render status email: %w", err)
	}
	return Email{To: []string{to}, Subject: subject, HTML: buf.String()}, nil
}
