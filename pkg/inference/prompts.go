package inference

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cxr-assist-server/internal/domain"
)

const (
	radiologistSystem = "You are an expert radiologist with extensive experience in chest X-ray interpretation. " +
		"Provide thorough, accurate, and clinically relevant analyses. Always respond in valid JSON format."
	clinicianSystem = "You are an expert clinician analyzing patient data. " +
		"Provide thorough clinical assessments with evidence-based recommendations. Always respond in valid JSON format."
	fusionSystem = "You are a senior physician integrating multimodal medical data. " +
		"Provide comprehensive, evidence-based diagnostic assessments that consider all available information. Always respond in valid JSON format."
	reportSystem = "You are a medical report generator creating professional, comprehensive reports for healthcare documentation."
)

const imageSchema = `{
  "findings": {
    "pneumonia": {"probability": float, "location": "string", "description": "string"},
    "pneumothorax": {"probability": float, "location": "string", "description": "string"},
    "pleural_effusion": {"probability": float, "location": "string", "description": "string"},
    "cardiomegaly": {"probability": float, "description": "string"},
    "consolidation": {"probability": float, "location": "string", "description": "string"},
    "pulmonary_edema": {"probability": float, "description": "string"},
    "masses_nodules": {"probability": float, "location": "string", "description": "string"},
    "fractures": {"probability": float, "location": "string", "description": "string"}
  },
  "overall_assessment": {
    "primary_diagnosis": "string",
    "confidence": float,
    "severity": "low|moderate|high",
    "urgency": "routine|urgent|emergent"
  },
  "differential_diagnoses": [{"diagnosis": "string", "probability": float, "rationale": "string"}],
  "recommendations": ["string"],
  "technical_quality": {"image_quality": "poor|adequate|good|excellent", "limitations": ["string"]},
  "key_observations": ["string"],
  "attention_areas": [{"region": "string", "description": "string", "probability": float}]
}`

const clinicalSchema = `{
  "risk_assessment": {"overall_risk": "low|moderate|high|critical", "risk_score": float, "risk_factors": ["string"]},
  "clinical_impressions": [{"condition": "string", "probability": float, "rationale": "string"}],
  "abnormal_findings": [{"parameter": "string", "value": "string", "reference_range": "string", "significance": "string"}],
  "recommendations": [{"category": "immediate|short_term|long_term", "action": "string", "priority": "low|medium|high"}],
  "red_flags": ["string"],
  "follow_up": {"timeframe": "string", "recommended_tests": ["string"], "specialist_referral": "string"}
}`

const fusionSchema = `{
  "integrated_diagnosis": {
    "primary_diagnosis": "string",
    "confidence": float,
    "severity": "low|moderate|high",
    "urgency": "routine|urgent|emergent",
    "supporting_evidence": ["string"],
    "contradicting_evidence": ["string"]
  },
  "differential_diagnoses": [{"diagnosis": "string", "probability": float, "rationale": "string"}],
  "clinical_correlation": {"image_clinical_agreement": "strong|moderate|weak|conflicting", "key_correlations": ["string"], "discrepancies": ["string"]},
  "treatment_recommendations": [{"intervention": "string", "priority": "immediate|urgent|routine", "rationale": "string"}],
  "prognosis": {"outlook": "excellent|good|fair|poor|critical", "factors": ["string"]},
  "monitoring_plan": [{"parameter": "string", "frequency": "string", "target": "string"}],
  "disposition": {"recommended_setting": "outpatient|emergency|admission|ICU", "rationale": "string", "urgency": "immediate|within_hours|within_days|routine"}
}`

const reportTemplate = `MEDICAL DIAGNOSTIC REPORT
=========================

PATIENT INFORMATION:
CLINICAL PRESENTATION:
IMAGING FINDINGS:
CLINICAL CORRELATION:
DIAGNOSTIC IMPRESSION:
RECOMMENDATIONS:
URGENCY AND DISPOSITION:

DISCLAIMER:
This AI-generated analysis is intended for clinical decision support only and should not replace professional medical judgment. All findings should be verified by qualified healthcare professionals.`

var titleCaser = cases.Title(language.English)

func label(name string) string {
	return titleCaser.String(strings.ReplaceAll(name, "_", " "))
}

func imagePrompt(ctx domain.PatientContext) string {
	var b strings.Builder
	b.WriteString("You are an expert radiologist analyzing a chest X-ray. Provide a comprehensive analysis in JSON format with the following structure:\n\n")
	b.WriteString(imageSchema)
	b.WriteString("\n\n")
	if patient := patientContext(ctx); patient != "" {
		b.WriteString("Clinical Context: ")
		b.WriteString(patient)
		b.WriteString("\n\n")
	}
	b.WriteString("Please analyze this chest X-ray systematically, considering all anatomical structures. ")
	b.WriteString("Provide probability scores between 0.0 and 1.0 for each finding. Focus on clinically significant abnormalities.")
	return b.String()
}

func clinicalPrompt(in domain.ClinicalInput) string {
	var b strings.Builder
	b.WriteString("Analyze the following clinical data and provide assessment in JSON format:\n\nClinical Data Analysis:\n\n")

	if len(in.Symptoms) > 0 {
		fmt.Fprintf(&b, "Symptoms: %s\n", strings.Join(in.Symptoms, ", "))
	}
	writeMeasurements(&b, "Vital Signs", in.Vitals, label)
	writeMeasurements(&b, "Laboratory Results", in.LabResults, strings.ToUpper)
	if patient := patientContext(in.Context); patient != "" {
		fmt.Fprintf(&b, "Patient: %s\n", patient)
	}

	b.WriteString("\nProvide analysis in this JSON structure:\n")
	b.WriteString(clinicalSchema)
	b.WriteString("\n\nFocus on clinically significant patterns and provide evidence-based recommendations.")
	return b.String()
}

func writeMeasurements(b *strings.Builder, heading string, ms domain.Measurements, name func(string) string) {
	var lines []string
	for _, m := range ms {
		if !m.Value.Present() {
			continue
		}
		lines = append(lines, fmt.Sprintf("  - %s: %s", name(m.Name), m.Value.String()))
	}
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n%s\n", heading, strings.Join(lines, "\n"))
}

func fusionPrompt(image, clinical, patient []byte) string {
	return fmt.Sprintf(`Based on the following image analysis and clinical data, provide a comprehensive multimodal diagnostic assessment:

IMAGE ANALYSIS:
%s

CLINICAL ANALYSIS:
%s

PATIENT DATA:
%s

Provide a comprehensive assessment in JSON format:
%s

Integrate findings from both imaging and clinical data to provide the most accurate assessment.`, image, clinical, patient, fusionSchema)
}

func reportPrompt(caseJSON []byte) string {
	return fmt.Sprintf(`Generate a comprehensive medical report based on the following data:

%s

Create a professional medical report with these sections:

%s

Please provide a detailed, professional report suitable for medical documentation.`, caseJSON, reportTemplate)
}

func patientContext(p domain.PatientContext) string {
	var parts []string
	if p.Age > 0 {
		parts = append(parts, fmt.Sprintf("Age %d", p.Age))
	}
	if p.Sex != "" {
		parts = append(parts, "Sex "+p.Sex)
	}
	if p.MedicalHistory != "" {
		parts = append(parts, "History: "+p.MedicalHistory)
	}
	if p.Medications != "" {
		parts = append(parts, "Medications: "+p.Medications)
	}
	if p.Allergies != "" {
		parts = append(parts, "Allergies: "+p.Allergies)
	}
	return strings.Join(parts, ". ")
}
