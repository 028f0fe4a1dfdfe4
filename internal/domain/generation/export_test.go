package generation

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/synthrec/synthrec/internal/domain/document"
	"github.com/synthrec/synthrec/internal/domain/validation"
)

func exportFixture() *Result {
	res := &Result{RunID: uuid.New()}
	res.Patients = []PatientResult{
		{
			Documents: []DocumentResult{
				{
					TemplatePath: "general/lab_reports/panel",
					Slot:         0,
					Document: &document.ExportedDocument{
						PatientID: "p-1",
						Fields:    map[string]interface{}{"glucose": 97.0, "note": "ok"},
						Validation: &validation.Report{
							Outcome: validation.OutcomeValid,
							Score:   100, MedicalScore: 100,
						},
					},
				},
				{
					TemplatePath: "general/lab_reports/panel",
					Slot:         1,
					Error:        "constraint violated",
				},
			},
		},
		{
			Documents: []DocumentResult{
				{
					TemplatePath: "general/visit_notes/note",
					Slot:         0,
					Document: &document.ExportedDocument{
						PatientID: "p-2",
						Fields:    map[string]interface{}{"systolic": 128.0, "ready": true},
						Validation: &validation.Report{
							Outcome: validation.OutcomeWarnings,
							Score:   95, MedicalScore: 95,
						},
					},
				},
			},
		},
	}
	return res
}

func TestWriteNDJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteNDJSON(&buf, exportFixture()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var lines []string
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (failed slot skipped)", len(lines))
	}
	var doc document.ExportedDocument
	if err := json.Unmarshal([]byte(lines[0]), &doc); err != nil {
		t.Fatalf("line 0 is not a document: %v", err)
	}
	if doc.PatientID != "p-1" {
		t.Errorf("patient = %s", doc.PatientID)
	}
}

func TestWriteCSV(t *testing.T) {
	res := exportFixture()
	var buf bytes.Buffer
	if err := WriteCSV(&buf, res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2 documents", len(rows))
	}

	wantHeader := []string{
		"run_id", "patient_id", "template_path", "slot", "outcome", "score", "medical_score",
		"glucose", "note", "ready", "systolic",
	}
	if strings.Join(rows[0], ",") != strings.Join(wantHeader, ",") {
		t.Errorf("header = %v, want %v", rows[0], wantHeader)
	}

	first := rows[1]
	if first[0] != res.RunID.String() || first[1] != "p-1" || first[4] != "valid" || first[5] != "100" {
		t.Errorf("row 1 = %v", first)
	}
	if first[7] != "97" {
		t.Errorf("glucose cell = %q, want trimmed float", first[7])
	}
	if first[9] != "" {
		t.Errorf("missing field should be empty, got %q", first[9])
	}

	second := rows[2]
	if second[1] != "p-2" || second[4] != "valid_with_warnings" || second[9] != "true" {
		t.Errorf("row 2 = %v", second)
	}
}

func TestWriteJSON(t *testing.T) {
	res := exportFixture()
	var buf bytes.Buffer
	if err := WriteJSON(&buf, res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded["run_id"] != res.RunID.String() {
		t.Errorf("run_id = %v", decoded["run_id"])
	}
}

func TestWriteStoredNDJSON(t *testing.T) {
	runID := uuid.New()
	docs := []*StoredDocument{
		{ID: uuid.New(), RunID: runID, Body: []byte(`{"fields":{"a":1}}`)},
		{ID: uuid.New(), RunID: runID}, // no body, skipped
		{ID: uuid.New(), RunID: runID, Body: []byte(`{"fields":{"a":2}}`)},
	}

	var buf bytes.Buffer
	if err := WriteStoredNDJSON(&buf, docs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Errorf("got %d lines, want 2", len(lines))
	}
}

func TestWriteStoredCSV(t *testing.T) {
	runID := uuid.New()
	docs := []*StoredDocument{
		{
			ID: uuid.New(), RunID: runID, PatientID: "p-1",
			TemplatePath: "general/lab_reports/panel",
			Outcome:      "valid", Score: 100, MedicalScore: 100,
			Body: []byte(`{"fields":{"glucose":97.5}}`),
		},
		{
			ID: uuid.New(), RunID: runID, PatientID: "p-2",
			TemplatePath: "general/visit_notes/note",
			Outcome:      "invalid", Score: 70, MedicalScore: 85,
			Body: []byte(`{"fields":{"systolic":180}}`),
		},
	}

	var buf bytes.Buffer
	if err := WriteStoredCSV(&buf, docs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0][len(rows[0])-2] != "glucose" || rows[0][len(rows[0])-1] != "systolic" {
		t.Errorf("field columns not sorted: %v", rows[0])
	}
	if rows[1][3] != "valid" || rows[2][3] != "invalid" {
		t.Errorf("outcome columns wrong: %v / %v", rows[1], rows[2])
	}

	bad := []*StoredDocument{{ID: uuid.New(), RunID: runID, Body: []byte("{broken")}}
	if err := WriteStoredCSV(&buf, bad); err == nil {
		t.Error("broken stored body should fail the export")
	}
}
