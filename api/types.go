package api

// SalesOrder is the externally-fetched order record. Beyond the items list
// it is opaque to the session core.
type SalesOrder struct {
	OrderNo  string      `json:"orderNo,omitempty"`
	Client   string      `json:"client"`
	ShipDate string      `json:"shipDate,omitempty"`
	Items    []OrderItem `json:"items"`
}

// OrderItem is one sales-order line item.
type OrderItem struct {
	Code        string  `json:"code"`
	Family      string  `json:"family"`
	Description string  `json:"description"`
	Qty         float64 `json:"qty"`
	ETA         string  `json:"eta"`
}

// FolderInfo is the read-only SharePoint folder preflight result.
type FolderInfo struct {
	HasPhotos  bool         `json:"has_photos"`
	PhotoCount int          `json:"photo_count"`
	OrderNo    string       `json:"order_no"`
	Customer   string       `json:"customer"`
	Files      []FolderFile `json:"files"`
}

// FolderFile is one file listed by the folder preflight.
type FolderFile struct {
	Name        string `json:"name"`
	WebURL      string `json:"webUrl"`
	ContentType string `json:"content_type"`
}

// UploadPhotoResponse is returned by each photo upload step. FolderID is the
// folder handle issued on the first call and reused for the rest.
type UploadPhotoResponse struct {
	OK       bool   `json:"ok"`
	FolderID string `json:"folderId"`
}
