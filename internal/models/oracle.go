package models

// OracleResult is the classification returned by the verification oracle.
type OracleResult struct {
	IsWaste           bool    `json:"isWaste"`
	Confidence        float64 `json:"confidence"`
	WasteType         string  `json:"wasteType"`
	EstimatedWeightKg float64 `json:"estimatedWeightKg"`
	CO2ImpactKg       float64 `json:"co2ImpactKg"`
	SuggestedPoints   int64   `json:"suggestedPoints"`
	Message           string  `json:"message"`
}

// OracleRequest is the payload sent to a remote oracle.
type OracleRequest struct {
	ImageRef  string  `json:"imageRef"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Upload describes a stored submission photo.
type Upload struct {
	ImageRef  string `json:"imageRef"`
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expiresAt"`
	Size      int64  `json:"size"`
	MIMEType  string `json:"mimeType"`
}
