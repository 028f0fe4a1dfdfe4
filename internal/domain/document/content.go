package document

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/synthrec/synthrec/internal/domain/patient"
	"github.com/synthrec/synthrec/internal/platform/expr"
	"github.com/synthrec/synthrec/internal/platform/sampling"
	"github.com/synthrec/synthrec/pkg/clinical"
)

// Ambient fields are the built-in placeholders resolved for every document
// before template fields: patient identity, document dates inside the
// requested range, care-team and facility names, and condition-driven
// narrative content. Each provider draws from its own stream derived from
// the document seed and the field name, so adding a provider never shifts
// another provider's draw.

// provider fills one ambient field.
type provider struct {
	Name string
	Fill func(c *ambientCtx) expr.Value
}

// ambientCtx carries everything a provider may draw from.
type ambientCtx struct {
	rng        *rand.Rand
	profile    *patient.Profile
	start, end time.Time
	primary    string // first active condition, or ""
}

var (
	physicianLast = []string{"Chen", "Patel", "Nguyen", "Okafor", "Ramirez", "Kowalski", "Fischer", "Haddad"}
	physicianSpec = []string{"Internal Medicine", "Family Medicine", "Cardiology", "Endocrinology", "Pulmonology"}
	clinicNames   = []string{"Riverside Medical Center", "Lakeview Family Practice", "Summit Health Clinic", "Parkside Internal Medicine", "Cedar Grove Medical Group"}
	clinicStreets = []string{"1200 Hospital Way", "88 Lakeview Blvd", "450 Summit Ave", "17 Parkside Rd", "930 Cedar Grove Ln"}
	exerciseHabit = []string{"Sedentary", "Walks 2-3 times per week", "Regular exercise 3-5 times per week", "Daily exercise"}
	familyHist    = []string{"Non-contributory", "Father with hypertension", "Mother with type 2 diabetes", "Sibling with asthma", "Family history of heart disease"}
	labLocations  = []string{"Main Laboratory", "Outpatient Draw Station", "Clinic Lab"}
)

// conditionContent is the narrative content keyed by the patient's primary
// condition. Fields fall back to the "" entry for condition-free patients.
type narrative struct {
	ChiefComplaint string
	Symptoms       []string
	HPI            string
	Control        []string
}

var conditionNarratives = map[string]narrative{
	"": {
		ChiefComplaint: "Routine health maintenance visit",
		Symptoms:       []string{"No acute complaints", "Feels well overall"},
		HPI:            "Patient presents for a routine examination with no acute complaints.",
		Control:        []string{"stable", "well"},
	},
	"diabetes": {
		ChiefComplaint: "Follow-up of type 2 diabetes mellitus",
		Symptoms:       []string{"Increased thirst and urination", "Occasional blurred vision", "Fatigue", "No hypoglycemic episodes"},
		HPI:            "Patient with established type 2 diabetes mellitus presents for routine follow-up of glycemic control.",
		Control:        []string{"well controlled", "adequately controlled", "suboptimally controlled"},
	},
	"hypertension": {
		ChiefComplaint: "Blood pressure follow-up",
		Symptoms:       []string{"Occasional morning headaches", "No chest pain or dyspnea", "No visual changes"},
		HPI:            "Patient with essential hypertension returns for blood pressure monitoring and medication review.",
		Control:        []string{"well controlled", "borderline controlled", "above goal"},
	},
	"asthma": {
		ChiefComplaint: "Asthma follow-up",
		Symptoms:       []string{"Intermittent wheezing", "Nocturnal cough twice weekly", "Uses rescue inhaler 1-2 times per week"},
		HPI:            "Patient with persistent asthma presents to review symptom control and inhaler technique.",
		Control:        []string{"well controlled", "partially controlled", "poorly controlled"},
	},
	"copd": {
		ChiefComplaint: "COPD follow-up with chronic dyspnea",
		Symptoms:       []string{"Dyspnea on exertion after one flight of stairs", "Chronic productive cough", "No hemoptysis"},
		HPI:            "Patient with COPD presents for routine pulmonary follow-up and symptom assessment.",
		Control:        []string{"stable", "slowly progressive"},
	},
	"heart_disease": {
		ChiefComplaint: "Cardiology follow-up of coronary artery disease",
		Symptoms:       []string{"No anginal symptoms at rest", "Mild exertional fatigue", "No orthopnea or edema"},
		HPI:            "Patient with known coronary artery disease presents for interval cardiac follow-up.",
		Control:        []string{"stable", "compensated"},
	},
	"obesity": {
		ChiefComplaint: "Weight management follow-up",
		Symptoms:       []string{"No acute complaints", "Reports difficulty with dietary adherence"},
		HPI:            "Patient presents for follow-up of weight management and lifestyle counseling.",
		Control:        []string{"stable", "improving"},
	},
	"kidney_disease": {
		ChiefComplaint: "Chronic kidney disease follow-up",
		Symptoms:       []string{"Mild fatigue", "No edema", "Stable urine output"},
		HPI:            "Patient with chronic kidney disease presents for renal function surveillance.",
		Control:        []string{"stable", "slowly progressive"},
	},
	"pregnancy": {
		ChiefComplaint: "Routine prenatal visit",
		Symptoms:       []string{"Mild nausea, improving", "Good fetal movement reported", "No vaginal bleeding"},
		HPI:            "Patient presents for a scheduled prenatal visit without acute concerns.",
		Control:        []string{"uncomplicated", "progressing normally"},
	},
	"colon_cancer": {
		ChiefComplaint: "Oncology follow-up of colon cancer",
		Symptoms:       []string{"Mild fatigue", "Stable appetite", "No rectal bleeding"},
		HPI:            "Patient with colon cancer presents for surveillance and treatment follow-up.",
		Control:        []string{"stable", "responding to treatment"},
	},
}

func pick(rng *rand.Rand, opts []string) string { return opts[rng.Intn(len(opts))] }

// dateBack picks a date up to maxBack days before the range end, clamped to
// the range start.
func (c *ambientCtx) dateBack(maxBack int) time.Time {
	d := c.end.AddDate(0, 0, -c.rng.Intn(maxBack+1))
	if d.Before(c.start) {
		return c.start
	}
	return d
}

func (c *ambientCtx) narrative() narrative {
	if n, ok := conditionNarratives[c.primary]; ok {
		return n
	}
	return conditionNarratives[""]
}

func (c *ambientCtx) physician() string {
	return "Dr. " + pick(c.rng, physicianLast)
}

func diagnosisText(cond string) string {
	if cond == "" {
		return "No active diagnoses"
	}
	if code, ok := clinical.ConditionByName(cond); ok {
		return fmt.Sprintf("%s (%s)", code.Display, code.ICD10)
	}
	return cond
}

// providers in resolution order. Field trees and sections may reference any
// of these names.
var providers = []provider{
	{"patient_id", func(c *ambientCtx) expr.Value { return expr.Str(c.profile.ID) }},
	{"patient_name", func(c *ambientCtx) expr.Value { return expr.Str(c.profile.Name) }},
	{"patient_gender", func(c *ambientCtx) expr.Value { return expr.Str(c.profile.Gender) }},
	{"patient_age", func(c *ambientCtx) expr.Value { return expr.Num(float64(c.profile.Age)) }},
	{"patient_dob", func(c *ambientCtx) expr.Value { return expr.Str(c.profile.DOB.Format("01/02/2006")) }},
	{"patient_mrn", func(c *ambientCtx) expr.Value { return expr.Str(c.profile.MRN) }},
	{"patient_phone", func(c *ambientCtx) expr.Value { return expr.Str(c.profile.Phone) }},
	{"patient_address", func(c *ambientCtx) expr.Value { return expr.Str(c.profile.Address) }},
	{"insurance_info", func(c *ambientCtx) expr.Value { return expr.Str(c.profile.Insurance) }},
	{"occupation", func(c *ambientCtx) expr.Value { return expr.Str(c.profile.Occupation) }},

	{"visit_date", func(c *ambientCtx) expr.Value { return expr.Str(c.dateBack(90).Format("January 2, 2006")) }},
	{"letter_date", func(c *ambientCtx) expr.Value { return expr.Str(c.dateBack(30).Format("January 2, 2006")) }},
	{"signature_date", func(c *ambientCtx) expr.Value { return expr.Str(c.dateBack(30).Format("January 2, 2006")) }},
	{"collection_date", func(c *ambientCtx) expr.Value { return expr.Str(c.dateBack(30).Format("2006-01-02")) }},
	{"measurement_date", func(c *ambientCtx) expr.Value { return expr.Str(c.dateBack(30).Format("2006-01-02")) }},
	{"measurement_time", func(c *ambientCtx) expr.Value {
		return expr.Str(fmt.Sprintf("%02d:%02d", 7+c.rng.Intn(10), c.rng.Intn(60)))
	}},

	{"physician_name", func(c *ambientCtx) expr.Value { return expr.Str(c.physician()) }},
	{"attending_physician", func(c *ambientCtx) expr.Value { return expr.Str(c.physician()) }},
	{"referring_provider", func(c *ambientCtx) expr.Value { return expr.Str(c.physician()) }},
	{"physician_title", func(c *ambientCtx) expr.Value { return expr.Str("MD") }},
	{"physician_specialty", func(c *ambientCtx) expr.Value { return expr.Str(pick(c.rng, physicianSpec)) }},
	{"provider_npi", func(c *ambientCtx) expr.Value {
		return expr.Str(fmt.Sprintf("%010d", 1000000000+c.rng.Intn(900000000)))
	}},
	{"staff_name", func(c *ambientCtx) expr.Value {
		return expr.Str(pick(c.rng, physicianLast) + ", RN")
	}},

	{"clinic_name", func(c *ambientCtx) expr.Value { return expr.Str(pick(c.rng, clinicNames)) }},
	{"clinic_address", func(c *ambientCtx) expr.Value {
		return expr.Str(pick(c.rng, clinicStreets) + ", Anytown, ST 12345")
	}},
	{"clinic_phone", func(c *ambientCtx) expr.Value {
		return expr.Str(fmt.Sprintf("(%03d) %03d-%04d", 200+c.rng.Intn(800), 200+c.rng.Intn(800), 1000+c.rng.Intn(9000)))
	}},
	{"clinic_fax", func(c *ambientCtx) expr.Value {
		return expr.Str(fmt.Sprintf("(%03d) %03d-%04d", 200+c.rng.Intn(800), 200+c.rng.Intn(800), 1000+c.rng.Intn(9000)))
	}},
	{"measurement_location", func(c *ambientCtx) expr.Value { return expr.Str(pick(c.rng, labLocations)) }},

	{"exercise_habits", func(c *ambientCtx) expr.Value { return expr.Str(pick(c.rng, exerciseHabit)) }},
	{"family_history", func(c *ambientCtx) expr.Value { return expr.Str(pick(c.rng, familyHist)) }},

	{"primary_diagnosis", func(c *ambientCtx) expr.Value { return expr.Str(diagnosisText(c.primary)) }},
	{"chief_complaint", func(c *ambientCtx) expr.Value { return expr.Str(c.narrative().ChiefComplaint) }},
	{"symptom_description", func(c *ambientCtx) expr.Value { return expr.Str(pick(c.rng, c.narrative().Symptoms)) }},
	{"hpi_text", func(c *ambientCtx) expr.Value { return expr.Str(c.narrative().HPI) }},
	{"condition_status", func(c *ambientCtx) expr.Value { return expr.Str(pick(c.rng, c.narrative().Control)) }},

	{"heent_exam", func(c *ambientCtx) expr.Value {
		return expr.Str("Normocephalic, atraumatic. Pupils equal and reactive. Oropharynx clear.")
	}},
	{"cv_exam", func(c *ambientCtx) expr.Value {
		if c.profile.HasCondition("heart_disease") {
			return expr.Str("Regular rate and rhythm. Grade II/VI systolic murmur at the apex. No gallop.")
		}
		return expr.Str("Regular rate and rhythm. No murmurs, rubs, or gallops.")
	}},
	{"pulm_exam", func(c *ambientCtx) expr.Value {
		switch {
		case c.profile.HasCondition("copd"):
			return expr.Str("Diminished breath sounds with prolonged expiratory phase. Scattered wheezes.")
		case c.profile.HasCondition("asthma"):
			return expr.Str("Mild expiratory wheezing bilaterally. Good air movement.")
		}
		return expr.Str("Clear to auscultation bilaterally. No wheezes, rales, or rhonchi.")
	}},
	{"abd_exam", func(c *ambientCtx) expr.Value {
		return expr.Str("Soft, non-tender, non-distended. Normal bowel sounds. No organomegaly.")
	}},
	{"neuro_exam", func(c *ambientCtx) expr.Value {
		return expr.Str("Alert and oriented x3. Cranial nerves II-XII intact. No focal deficits.")
	}},
	{"ext_exam", func(c *ambientCtx) expr.Value {
		if c.profile.HasCondition("heart_disease") || c.profile.HasCondition("kidney_disease") {
			return expr.Str("Trace bilateral lower extremity edema. Pulses 2+ throughout.")
		}
		return expr.Str("No clubbing, cyanosis, or edema. Pulses 2+ throughout.")
	}},
	{"skin_exam", func(c *ambientCtx) expr.Value {
		return expr.Str("Warm and dry. No rashes or suspicious lesions.")
	}},

	{"active_medications", func(c *ambientCtx) expr.Value {
		if len(c.profile.Medications) == 0 {
			return expr.Str("None")
		}
		out := ""
		for i, m := range c.profile.Medications {
			if i > 0 {
				out += "; "
			}
			out += m
		}
		return expr.Str(out)
	}},
	{"active_conditions", func(c *ambientCtx) expr.Value {
		if len(c.profile.Conditions) == 0 {
			return expr.Str("None")
		}
		out := ""
		for i, cond := range c.profile.Conditions {
			if i > 0 {
				out += "; "
			}
			out += diagnosisText(cond)
		}
		return expr.Str(out)
	}},
}

// BuiltinFieldNames lists every ambient field the document layer resolves.
// The template registry treats these as always-resolvable references.
func BuiltinFieldNames() []string {
	out := make([]string, len(providers))
	for i, p := range providers {
		out[i] = p.Name
	}
	return out
}

// fillAmbient resolves every built-in field into the document.
func fillAmbient(d *Document, docSeed int64, start, end time.Time) {
	primary := ""
	if len(d.profile.Conditions) > 0 {
		primary = d.profile.Conditions[0]
	}
	for _, p := range providers {
		c := &ambientCtx{
			rng:     sampling.New(sampling.FieldSeed(docSeed, "ambient."+p.Name)),
			profile: d.profile,
			start:   start,
			end:     end,
			primary: primary,
		}
		d.set(p.Name, p.Fill(c))
	}
}
