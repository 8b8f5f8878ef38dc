package models

// Statistics is the aggregate computed over a filtered installation set.
type Statistics struct {
	TotalInstallations      int            `json:"total_installations"`
	SuccessfulInstallations int            `json:"successful_installations"`
	FailedInstallations     int            `json:"failed_installations"`
	SuccessRate             float64        `json:"success_rate"`
	AverageTimeMinutes      float64        `json:"average_time_minutes"`
	UniqueClients           int            `json:"unique_clients"`
	ByBrand                 map[string]int `json:"by_brand"`
	TopDrivers              map[string]int `json:"top_drivers"`
}
