package models

import "encoding/json"

type ReferenceImageUpload struct {
	// File is a data URL.
	File        string `json:"dataUrl" binding:"required"`
	Description string `json:"description,omitempty"`
}

type CreateOrderRequest struct {
	PlanID   string `json:"plan" binding:"required" example:"furniture_add"`
	FileName string `json:"fileName" example:"living-room.jpg"`
	FileSize int64  `json:"fileSize"`
	// SourceImage is a data URL of the room photo.
	SourceImage     string                 `json:"file" binding:"required"`
	Instructions    string                 `json:"instructions"`
	ReferenceImages []ReferenceImageUpload `json:"referenceImages,omitempty"`
	// VisionAnalysis is text from a prior /api/analyze-room call. When empty
	// the server asks the vision model itself on a best-effort basis.
	VisionAnalysis string `json:"visionAnalysis,omitempty"`
}

type ConfirmPaymentRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Payment   string `json:"payment" binding:"required" example:"success"`
}

type AssignRequest struct {
	// EditorID empty or null clears the assignment.
	EditorID *string `json:"editorId"`
}

type DeliverRequest struct {
	File string `json:"file" binding:"required"`
}

type RejectRequest struct {
	Notes string `json:"notes"`
}

type QuoteRequest struct {
	Amount json.Number `json:"amount" binding:"required" swaggertype:"integer" example:"5000"`
}

type PlanRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Price       string `json:"price"`
	Amount      int64  `json:"amount"`
	Number      int    `json:"number"`
	Description string `json:"description"`
	// IsVisible defaults to true when omitted.
	IsVisible *bool `json:"isVisible,omitempty"`
}

type VisibilityRequest struct {
	IsVisible *bool `json:"isVisible" binding:"required"`
}

type EditorRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Specialty string `json:"specialty"`
}

type ArchiveRequest struct {
	Title       string `json:"title"`
	Category    string `json:"category"`
	BeforeURL   string `json:"beforeurl"`
	AfterURL    string `json:"afterurl"`
	Description string `json:"description"`
}

type ArchiveImageRequest struct {
	File string `json:"file" binding:"required"`
}

type PostMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type UploadRequest struct {
	Path string `json:"path"`
	File string `json:"file"`
}

type AnalyzeRoomRequest struct {
	ImageBase64 string `json:"imageBase64"`
}

type CheckoutSessionRequest struct {
	PlanTitle string `json:"planTitle"`
	Amount    int64  `json:"amount"`
	OrderID   string `json:"orderId"`
	UserEmail string `json:"userEmail"`
}
