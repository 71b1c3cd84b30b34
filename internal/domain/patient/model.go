package patient

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HadleyLab/ucfwealth-server/internal/platform/fhir"
)

// Patient maps to the patient table (FHIR Patient resource).
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FHIRID    string    `db:"fhir_id" json:"fhir_id"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	VersionID int       `db:"version_id" json:"version_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Patient) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Patient",
		"id":           p.FHIRID,
		"active":       p.Active,
		"meta": fhir.Meta{
			VersionID:   fmt.Sprintf("%d", p.VersionID),
			LastUpdated: p.UpdatedAt,
			Profile:     []string{"http://hl7.org/fhir/StructureDefinition/Patient"},
		},
	}
	if p.Name != "" {
		result["name"] = []fhir.HumanName{{Text: p.Name}}
	}
	return result
}
