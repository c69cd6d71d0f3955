package provider

// Provider is a service provider listing. OwnerID is the user identity that
// receives messages addressed to this provider.
type Provider struct {
	ID          int    `json:"id"`
	OwnerID     int    `json:"owner_id"`
	DisplayName string `json:"display_name"`
}
