package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DemoPassword is shared by every demo login.
const DemoPassword = "123456789"

type demoUnit struct {
	id, name, slug, ae, ip string
	port                   int
	active                 bool
}

var demoUnits = []demoUnit{
	{"u1", "UBS Central", "ubs-central", "UBS_CENTRAL", "192.168.1.10", 4242, true},
	{"u2", "Hospital Municipal", "hospital-municipal", "HOSP_MUN", "192.168.2.20", 4242, true},
	{"u3", "Clinica Norte", "clinica-norte", "CLIN_NORTE", "10.0.0.5", 11112, false},
}

var demoUsers = []struct{ id, login, name, role, unit string }{
	{"usr1", "alessandro", "Alessandro", "admin_master", "u1"},
	{"usr2", "gian", "Dr. Gian", "medico", "u1"},
	{"usr3", "natan", "Natan", "unit_admin", "u2"},
	{"usr4", "lidiane", "Lidiane", "viewer", "u2"},
}

var demoPatients = []struct{ name, id string }{
	{"JOSE CARLOS SILVA", "P001"},
	{"MARIA APARECIDA OLIVEIRA", "P002"},
	{"PEDRO HENRIQUE SANTOS", "P003"},
	{"ANA LUCIA FERREIRA", "P004"},
	{"FRANCISCO SOUZA", "P005"},
	{"CLAUDIA MARIA COSTA", "P006"},
	{"JOAO BATISTA PEREIRA", "P007"},
	{"FERNANDA RODRIGUES", "P008"},
}

var (
	demoModalities   = []string{"CR", "CT", "MR", "US", "DX", "MG"}
	demoDescriptions = []string{"Chest PA", "Head without contrast", "Lumbar spine", "Full abdomen", "Bilateral mammography", "Right knee", "Pelvis AP"}
	// per study index modulo 5: no report, no report, draft, signed, no report
	demoStatuses = []string{"", "", "draft", "signed", ""}
)

var demoTemplates = []struct{ id, unit, name, modality, body string }{
	{"tpl1", "", "Chest PA - Standard", "CR",
		"**RADIOLOGY REPORT**\n\nChest PA:\n\n- Lung fields: \n- Cardiac area: \n- Mediastinum: \n- Costophrenic angles: \n\n**IMPRESSION:**\n"},
	{"tpl2", "", "Head CT - Standard", "CT",
		"**CT REPORT - HEAD**\n\nTechnique: \n\nBrain parenchyma:\n- Hemispheres: \n- Ventricles: \n- Posterior fossa: \n\n**IMPRESSION:**\n"},
	{"tpl3", "u1", "Abdomen US - UBS Central", "US",
		"**ULTRASOUND REPORT - ABDOMEN**\n\nLiver: \nGallbladder: \nBile ducts: \nPancreas: \nSpleen: \nKidneys: \nBladder: \n\n**IMPRESSION:**\n"},
}

var demoSnippets = []struct{ id, category, name, body string }{
	{"snp1", "impression", "Normal exam", "Exam within normal limits."},
	{"snp2", "impression", "Follow-up suggested", "Clinical and imaging follow-up is suggested."},
	{"snp3", "lungs", "Clear lung fields", "Lung fields are clear."},
	{"snp4", "technique", "Without contrast", "Exam performed without intravenous contrast."},
}

const (
	demoDraftBody  = "**RADIOLOGY REPORT**\n\nChest PA:\n\n- Lung fields: Clear\n- Cardiac area: Normal\n- Mediastinum: Not widened\n- Costophrenic angles: Free\n\n**IMPRESSION:** Exam within normal limits.\n"
	demoSignedBody = "**CT REPORT - HEAD**\n\nBrain parenchyma without changes.\nVentricular system of normal size.\n\n**IMPRESSION:** Normal exam.\n"
)

// SeedDemo loads the demonstration dataset when the users table is empty.
// Every demo login shares passwordHash.  now anchors study dates so the
// worklist always has recent exams.
func SeedDemo(ctx context.Context, db *sql.DB, passwordHash string, now time.Time) (bool, error) {
	exists, err := hasUsers(ctx, db)
	if err != nil || exists {
		return false, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, u := range demoUnits {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO units (id, name, slug, is_active, orthanc_base_url, ae_title, ip_address, port)
			 VALUES (?,?,?,?,?,?,?,?)`,
			u.id, u.name, u.slug, u.active, fmt.Sprintf("http://%s:8042", u.ip), u.ae, u.ip, u.port); err != nil {
			return false, fmt.Errorf("seed unit %s: %w", u.id, err)
		}
	}
	for _, u := range demoUsers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, email, password_hash, full_name, role, unit_id, is_active)
			 VALUES (?,?,?,?,?,?,1)`,
			u.id, u.login, passwordHash, u.name, u.role, u.unit); err != nil {
			return false, fmt.Errorf("seed user %s: %w", u.login, err)
		}
	}
	for _, t := range demoTemplates {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO report_templates (id, unit_id, name, modality, body) VALUES (?,?,?,?,?)`,
			t.id, nullIfEmpty(t.unit), t.name, t.modality, t.body); err != nil {
			return false, fmt.Errorf("seed template %s: %w", t.id, err)
		}
	}
	for _, s := range demoSnippets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO report_snippets (id, category, name, body) VALUES (?,?,?,?)`,
			s.id, s.category, s.name, s.body); err != nil {
			return false, fmt.Errorf("seed snippet %s: %w", s.id, err)
		}
	}

	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("study-%03d", i+1)
		unit := "u1"
		if i%3 == 0 {
			unit = "u2"
		}
		p := demoPatients[i%len(demoPatients)]
		status := demoStatuses[i%len(demoStatuses)]
		date := now.AddDate(0, 0, -((i * 3) % 60)).Format("2006-01-02")
		clock := fmt.Sprintf("%02d:%02d:00", 8+i%10, (i*7)%60)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO studies (id, unit_id, study_instance_uid, patient_name, patient_id,
			   accession_number, study_date, study_time, modalities, description, report_status)
			 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			id, unit, fmt.Sprintf("1.2.840.%d", 10000+i), p.name, p.id,
			fmt.Sprintf("ACC%d", 2000+i), date, clock,
			demoModalities[i%len(demoModalities)], demoDescriptions[i%len(demoDescriptions)],
			nullIfEmpty(status)); err != nil {
			return false, fmt.Errorf("seed study %s: %w", id, err)
		}
		if status == "" {
			continue
		}
		body, tpl := demoDraftBody, "tpl1"
		if status == "signed" {
			body, tpl = demoSignedBody, "tpl2"
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reports (id, study_id, unit_id, author_user_id, template_id, content, status, signed_at)
			 VALUES (?,?,?,?,?,?,?, IF(? = 'signed', CURRENT_TIMESTAMP(3), NULL))`,
			fmt.Sprintf("rpt%d", i+1), id, unit, "usr2", tpl, body, status, status); err != nil {
			return false, fmt.Errorf("seed report for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	committed = true
	return true, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
