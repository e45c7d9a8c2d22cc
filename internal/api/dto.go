package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/versebook/internal/document"
	"github.com/starford/versebook/internal/syncengine"
	"github.com/starford/versebook/internal/verseservice"
)

// CreateCategoryRequest is the request body for creating a category.
// An empty ParentID creates a top-level category.
type CreateCategoryRequest struct {
	ParentID string `json:"parent_id,omitempty" example:"6f1c..."`
	Name     string `json:"name" example:"Faith" validate:"required"`
}

func (r *CreateCategoryRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required),
	)
}

// RenameCategoryRequest is the request body for renaming a category.
type RenameCategoryRequest struct {
	Name string `json:"name" example:"Hope" validate:"required"`
}

func (r *RenameCategoryRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required),
	)
}

// ReorderRequest moves one sibling from OldIndex to NewIndex. ParentID is
// only read when reordering categories.
type ReorderRequest struct {
	ParentID string `json:"parent_id,omitempty"`
	OldIndex int    `json:"old_index" example:"2"`
	NewIndex int    `json:"new_index" example:"0"`
}

func (r *ReorderRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.OldIndex, validation.Min(0)),
		validation.Field(&r.NewIndex, validation.Min(0)),
	)
}

// CreateVerseRequest is the request body for adding a verse.
type CreateVerseRequest struct {
	Reference string   `json:"reference" example:"John 3:16" validate:"required"`
	Text      string   `json:"text" example:"For God so loved the world"`
	Notes     string   `json:"notes"`
	Images    []string `json:"images"`
}

func (r *CreateVerseRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Reference, validation.Required),
		validation.Field(&r.Images, validation.Each(validation.Required)),
	)
}

func (r *CreateVerseRequest) input() verseservice.VerseInput {
	return verseservice.VerseInput{Reference: r.Reference, Text: r.Text, Notes: r.Notes, Images: r.Images}
}

// UpdateVerseRequest merges fields into a verse. Omitted fields are kept;
// images are appended.
type UpdateVerseRequest struct {
	Reference *string  `json:"reference,omitempty"`
	Text      *string  `json:"text,omitempty"`
	Notes     *string  `json:"notes,omitempty"`
	Images    []string `json:"images,omitempty"`
}

func (r *UpdateVerseRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Reference, validation.NilOrNotEmpty),
		validation.Field(&r.Images, validation.Each(validation.Required)),
	)
}

func (r *UpdateVerseRequest) update() document.VerseUpdate {
	return document.VerseUpdate{Reference: r.Reference, Text: r.Text, Notes: r.Notes, Images: r.Images}
}

// ResolveRequest settles a pending conflict.
type ResolveRequest struct {
	Choice string `json:"choice" example:"keep_local" validate:"required"`
}

func (r *ResolveRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Choice, validation.Required,
			validation.In(string(syncengine.KeepLocal), string(syncengine.UseRemote))),
	)
}

// AttachmentSourceRequest imports an attachment from a URL or data URI.
type AttachmentSourceRequest struct {
	Source   string `json:"source" example:"https://example.com/photo.jpg" validate:"required"`
	Filename string `json:"filename,omitempty"`
}

func (r *AttachmentSourceRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Source, validation.Required),
	)
}

// SyncResponse reports the outcome of a save, pull or resolve. Error is set
// when the operation failed after producing a result.
type SyncResponse struct {
	Result syncengine.Result `json:"result"`
	Error  string            `json:"error,omitempty"`
}
