package repository

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cxr-assist-server/internal/domain"
)

// caseSelectColumns is the column order scanned by every case query.
const caseSelectColumns = `id, external_id, clinician_id, patient_id, case_title,
	symptoms, vitals, lab_results, image_filename, image_analysis, ai_diagnosis,
	confidence_scores, recommendations, risk_assessment, case_status, created_at, updated_at`

// caseDocuments are the JSON-encoded columns of a case row.
type caseDocuments struct {
	Symptoms         []byte
	Vitals           []byte
	LabResults       []byte
	ImageAnalysis    []byte
	AIDiagnosis      []byte
	ConfidenceScores []byte
	Risk             []byte
}

func encodeDocuments(c *domain.Case) (*caseDocuments, error) {
	docs := &caseDocuments{}
	fields := []struct {
		name  string
		value interface{}
		dst   *[]byte
	}{
		{"symptoms", symptomsOrEmpty(c.Symptoms), &docs.Symptoms},
		{"vitals", c.Vitals, &docs.Vitals},
		{"lab_results", c.LabResults, &docs.LabResults},
		{"image_analysis", c.ImageAnalysis, &docs.ImageAnalysis},
		{"ai_diagnosis", c.AIDiagnosis, &docs.AIDiagnosis},
		{"confidence_scores", c.ConfidenceScores, &docs.ConfidenceScores},
		{"risk_assessment", c.Risk, &docs.Risk},
	}
	for _, f := range fields {
		data, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", f.name, err)
		}
		*f.dst = data
	}
	return docs, nil
}

func symptomsOrEmpty(s domain.Symptoms) domain.Symptoms {
	if s == nil {
		return domain.Symptoms{}
	}
	return s
}

func (d *caseDocuments) decodeInto(c *domain.Case) error {
	fields := []struct {
		name string
		data []byte
		dst  interface{}
	}{
		{"symptoms", d.Symptoms, &c.Symptoms},
		{"vitals", d.Vitals, &c.Vitals},
		{"lab_results", d.LabResults, &c.LabResults},
		{"image_analysis", d.ImageAnalysis, &c.ImageAnalysis},
		{"ai_diagnosis", d.AIDiagnosis, &c.AIDiagnosis},
		{"confidence_scores", d.ConfidenceScores, &c.ConfidenceScores},
		{"risk_assessment", d.Risk, &c.Risk},
	}
	for _, f := range fields {
		if len(f.data) == 0 {
			continue
		}
		if err := json.Unmarshal(f.data, f.dst); err != nil {
			return fmt.Errorf("decoding %s: %w", f.name, err)
		}
	}
	return nil
}

// assignment is one column = value pair in an UPDATE.
type assignment struct {
	column string
	value  interface{}
}

// updateAssignments maps the whitelisted CaseUpdate fields onto columns.
// Fields outside CaseUpdate can never reach the SET clause.
func updateAssignments(u domain.CaseUpdate) ([]assignment, error) {
	var out []assignment
	if u.Title != nil {
		out = append(out, assignment{"case_title", *u.Title})
	}
	if u.PatientID != nil {
		out = append(out, assignment{"patient_id", *u.PatientID})
	}
	if u.Recommendations != nil {
		out = append(out, assignment{"recommendations", *u.Recommendations})
	}
	if u.Status != nil {
		out = append(out, assignment{"case_status", string(*u.Status)})
	}

	documents := []struct {
		column string
		set    bool
		value  interface{}
	}{
		{"symptoms", u.Symptoms != nil, u.Symptoms},
		{"vitals", u.Vitals != nil, u.Vitals},
		{"lab_results", u.LabResults != nil, u.LabResults},
		{"ai_diagnosis", u.AIDiagnosis != nil, u.AIDiagnosis},
		{"confidence_scores", u.ConfidenceScores != nil, u.ConfidenceScores},
	}
	for _, d := range documents {
		if !d.set {
			continue
		}
		data, err := json.Marshal(d.value)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", d.column, err)
		}
		out = append(out, assignment{d.column, string(data)})
	}

	if u.AIDiagnosis != nil {
		out = append(out, assignment{"primary_diagnosis", u.AIDiagnosis.PrimaryDiagnosis()})
	}
	return out, nil
}

// placeholderFunc renders the n-th (1-based) bind parameter.
type placeholderFunc func(n int) string

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

// likeEscaper escapes LIKE wildcards so a search term matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// whereClause builds the WHERE clause for a case filter. diagnosisText is the
// SQL expression rendering the stored ai_diagnosis document as text.
func whereClause(filter domain.CaseFilter, ph placeholderFunc, timeArg func(time.Time) interface{}, diagnosisText string) (string, []interface{}) {
	var conds []string
	var args []interface{}
	next := func(v interface{}) string {
		args = append(args, v)
		return ph(len(args))
	}

	if filter.ClinicianID != "" {
		conds = append(conds, "clinician_id = "+next(filter.ClinicianID))
	}
	if filter.Status != "" {
		conds = append(conds, "case_status = "+next(string(filter.Status)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(search)) + "%"
		var terms []string
		for _, col := range []string{"patient_id", "case_title", "primary_diagnosis", diagnosisText} {
			terms = append(terms, fmt.Sprintf(`LOWER(COALESCE(%s, '')) LIKE %s ESCAPE '\'`, col, next(pattern)))
		}
		conds = append(conds, "("+strings.Join(terms, " OR ")+")")
	}
	if filter.CreatedFrom != nil {
		conds = append(conds, "created_at >= "+next(timeArg(*filter.CreatedFrom)))
	}
	if filter.CreatedTo != nil {
		conds = append(conds, "created_at < "+next(timeArg(*filter.CreatedTo)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
