package model

import (
	"time"
)

// MaterialKind discriminates uploaded documents.
type MaterialKind string

const (
	KindReading    MaterialKind = "reading"
	KindSlides     MaterialKind = "slides"
	KindAssignment MaterialKind = "assignment"
	KindAnswers    MaterialKind = "answers"
	KindOther      MaterialKind = "other"
)

// Valid reports whether k is a known kind.
func (k MaterialKind) Valid() bool {
	switch k {
	case KindReading, KindSlides, KindAssignment, KindAnswers, KindOther:
		return true
	}
	return false
}

// VisibleTo reports whether a material of kind k may be read by role.
// Answer keys never reach students.
func VisibleTo(role Role, k MaterialKind) bool {
	switch role {
	case RoleTeacher:
		return true
	case RoleStudent:
		return k != KindAnswers
	default:
		return false
	}
}

// StudentVisibleKinds lists the kinds a student may read.
func StudentVisibleKinds() []MaterialKind {
	var kinds []MaterialKind
	for _, k := range []MaterialKind{KindReading, KindSlides, KindAssignment, KindAnswers, KindOther} {
		if VisibleTo(RoleStudent, k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Material is a teacher-uploaded document.
type Material struct {
	ID            string       `json:"id"`
	CourseID      string       `json:"course_id"`
	AssignmentID  *string      `json:"assignment_id,omitempty"`
	Title         string       `json:"title"`
	Kind          MaterialKind `json:"kind"`
	StoragePath   string       `json:"storage_path"`
	TextExtracted bool         `json:"text_extracted"`
	CreatedAt     time.Time    `json:"created_at"`

	// Populated on list responses only.
	DownloadURL string `json:"download_url,omitempty"`
}

// MaterialTextChunk is a window of extracted material text.
type MaterialTextChunk struct {
	MaterialID string `json:"material_id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
}

// MaterialExcerpt is a chunk joined with its material title.
type MaterialExcerpt struct {
	MaterialID string
	Title      string
	ChunkIndex int
	Content    string
}

// ListMaterialsResponse is the response for listing materials.
type ListMaterialsResponse struct {
	Materials []Material `json:"materials"`
}
