package api

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/dtokit/internal/models"
	"github.com/starford/dtokit/internal/recordservice"
)

var kindRe = regexp.MustCompile(`^[a-z][a-z0-9_.-]*$`)

// AssignRequest is the body of POST /records/{schema}/assign.
type AssignRequest struct {
	Data map[string]any `json:"data"`
	Set  map[string]any `json:"set"`
}

// Validate validates the request.
func (r AssignRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Set, validation.Required),
	)
}

// ModelRequest is the body of POST /models/{kind} and PUT /models/{kind}/{id}.
type ModelRequest struct {
	Attributes map[string]any `json:"attributes"`
}

// Validate validates the request.
func (r ModelRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Attributes, validation.NotNil),
	)
}

func validateKind(kind string) error {
	return validation.Validate(kind, validation.Required, validation.Length(1, 64), validation.Match(kindRe))
}

// SchemaDetail is the schema response type (aliased from the domain layer).
type SchemaDetail = recordservice.SchemaDetail

// SchemaListResponse wraps the schema listing.
type SchemaListResponse struct {
	Schemas []SchemaDetail `json:"schemas" validate:"required"`
	Total   int            `json:"total" example:"3" validate:"required"`
}

// RecordResponse is a populated record with the schema it was built from.
type RecordResponse struct {
	Schema string `json:"schema" example:"user" validate:"required"`
	Record any    `json:"record" validate:"required"`
}

// ModelResponse is a stored model (aliased from the domain layer).
type ModelResponse = models.Entity

// ModelListResponse wraps paginated model listings.
type ModelListResponse struct {
	Models []models.EntityMetadata `json:"models" validate:"required"`
	Total  int                     `json:"total" example:"42" validate:"required"`
}

// DocumentResponse is returned after a schema document upload.
type DocumentResponse struct {
	File    string    `json:"file" example:"users.yaml" validate:"required"`
	Size    int64     `json:"size" example:"512" validate:"required"`
	Schemas []string  `json:"schemas" validate:"required"`
	Loaded  time.Time `json:"loaded_at"`
}
