package stats

type TopItem struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type Summary struct {
	RevenueToday float64   `json:"revenue_today"`
	TopThree     []TopItem `json:"top_three"`
}
