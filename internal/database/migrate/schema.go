// Package migrate declares the relational schema in ent's table format so
// that ent's migration engine can diff and apply it.
package migrate

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// StudentsColumns holds the columns for the "students" table.
	StudentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "first_name", Type: field.TypeString},
		{Name: "last_name", Type: field.TypeString},
		{Name: "cin", Type: field.TypeString, Unique: true, Size: 20},
		{Name: "email", Type: field.TypeString, Unique: true},
		{Name: "birth_date", Type: field.TypeString, Size: 10},
		{Name: "formation_level", Type: field.TypeString, Default: ""},
		{Name: "speciality", Type: field.TypeString, Default: ""},
		{Name: "student_group", Type: field.TypeString, Size: 32},
		{Name: "inscription_number", Type: field.TypeString, Unique: true, Size: 64},
		{Name: "formation_type", Type: field.TypeString, Default: "Résidentielle"},
		{Name: "formation_mode", Type: field.TypeString, Default: "Diplômante"},
		{Name: "formation_year", Type: field.TypeString, Default: ""},
		{Name: "password_hash", Type: field.TypeString, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// StudentsTable holds the schema information for the "students" table.
	StudentsTable = &schema.Table{
		Name:       "students",
		Columns:    StudentsColumns,
		PrimaryKey: []*schema.Column{StudentsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "student_student_group_last_name_first_name",
				Unique:  false,
				Columns: []*schema.Column{StudentsColumns[8], StudentsColumns[2], StudentsColumns[1]},
			},
		},
	}
	// AttestationRequestsColumns holds the columns for the "attestation_requests" table.
	AttestationRequestsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "student_id", Type: field.TypeUUID, Nullable: true},
		{Name: "first_name", Type: field.TypeString},
		{Name: "last_name", Type: field.TypeString},
		{Name: "cin", Type: field.TypeString, Unique: true, Size: 20},
		{Name: "phone", Type: field.TypeString, Size: 32},
		{Name: "student_group", Type: field.TypeString, Size: 32},
		{Name: "status", Type: field.TypeString, Size: 16, Default: "pending"},
		{Name: "rejection_reason", Type: field.TypeString, Nullable: true},
		{Name: "attestation_number", Type: field.TypeInt64, Unique: true, Nullable: true},
		{Name: "year_requested", Type: field.TypeInt},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// AttestationRequestsTable holds the schema information for the "attestation_requests" table.
	AttestationRequestsTable = &schema.Table{
		Name:       "attestation_requests",
		Columns:    AttestationRequestsColumns,
		PrimaryKey: []*schema.Column{AttestationRequestsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "attestation_requests_students_requests",
				Columns:    []*schema.Column{AttestationRequestsColumns[1]},
				RefColumns: []*schema.Column{StudentsColumns[0]},
				OnDelete:   schema.SetNull,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "attestationrequest_status_created_at",
				Unique:  false,
				Columns: []*schema.Column{AttestationRequestsColumns[7], AttestationRequestsColumns[11]},
			},
			{
				Name:    "attestationrequest_first_name_last_name",
				Unique:  false,
				Columns: []*schema.Column{AttestationRequestsColumns[2], AttestationRequestsColumns[3]},
			},
		},
	}
	// LoginAuditColumns holds the columns for the "login_audit" table.
	LoginAuditColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "user_email", Type: field.TypeString},
		{Name: "user_type", Type: field.TypeString, Size: 16},
		{Name: "ip_address", Type: field.TypeString, Default: ""},
		{Name: "city", Type: field.TypeString, Default: ""},
		{Name: "country", Type: field.TypeString, Default: ""},
		{Name: "device_info", Type: field.TypeString, Default: ""},
		{Name: "user_agent", Type: field.TypeString, Default: ""},
		{Name: "success", Type: field.TypeBool, Default: false},
		{Name: "login_timestamp", Type: field.TypeTime},
		{Name: "created_at", Type: field.TypeTime},
	}
	// LoginAuditTable holds the schema information for the "login_audit" table.
	LoginAuditTable = &schema.Table{
		Name:       "login_audit",
		Columns:    LoginAuditColumns,
		PrimaryKey: []*schema.Column{LoginAuditColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "loginaudit_login_timestamp",
				Unique:  false,
				Columns: []*schema.Column{LoginAuditColumns[9]},
			},
		},
	}
	// VerificationCodesColumns holds the columns for the "verification_codes" table.
	VerificationCodesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "email", Type: field.TypeString},
		{Name: "code", Type: field.TypeString, Size: 6},
		{Name: "expires_at", Type: field.TypeTime},
		{Name: "used_at", Type: field.TypeTime, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
	}
	// VerificationCodesTable holds the schema information for the "verification_codes" table.
	VerificationCodesTable = &schema.Table{
		Name:       "verification_codes",
		Columns:    VerificationCodesColumns,
		PrimaryKey: []*schema.Column{VerificationCodesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "verificationcode_email_created_at",
				Unique:  false,
				Columns: []*schema.Column{VerificationCodesColumns[1], VerificationCodesColumns[5]},
			},
		},
	}
	// StaffUsersColumns holds the columns for the "staff_users" table.
	StaffUsersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "email", Type: field.TypeString, Unique: true},
		{Name: "display_name", Type: field.TypeString, Default: ""},
		{Name: "password_hash", Type: field.TypeString, Nullable: true},
		{Name: "active", Type: field.TypeBool, Default: true},
		{Name: "last_login_at", Type: field.TypeTime, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// StaffUsersTable holds the schema information for the "staff_users" table.
	StaffUsersTable = &schema.Table{
		Name:       "staff_users",
		Columns:    StaffUsersColumns,
		PrimaryKey: []*schema.Column{StaffUsersColumns[0]},
	}
	// AuditLogsColumns holds the columns for the "audit_logs" table.
	AuditLogsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "actor_id", Type: field.TypeUUID, Nullable: true},
		{Name: "action", Type: field.TypeString},
		{Name: "resource_type", Type: field.TypeString, Nullable: true},
		{Name: "resource_id", Type: field.TypeString, Nullable: true},
		{Name: "ip_address", Type: field.TypeString, Nullable: true},
		{Name: "user_agent", Type: field.TypeString, Nullable: true},
		{Name: "context", Type: field.TypeJSON, Nullable: true},
		{Name: "occurred_at", Type: field.TypeTime},
	}
	// AuditLogsTable holds the schema information for the "audit_logs" table.
	AuditLogsTable = &schema.Table{
		Name:       "audit_logs",
		Columns:    AuditLogsColumns,
		PrimaryKey: []*schema.Column{AuditLogsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "auditlog_occurred_at",
				Unique:  false,
				Columns: []*schema.Column{AuditLogsColumns[8]},
			},
		},
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		StudentsTable,
		AttestationRequestsTable,
		LoginAuditTable,
		VerificationCodesTable,
		StaffUsersTable,
		AuditLogsTable,
	}
)

func init() {
	AttestationRequestsTable.ForeignKeys[0].RefTable = StudentsTable
}
