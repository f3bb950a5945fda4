package geocoding

// searchResponse is the wire shape of the forward geocoding API
type searchResponse struct {
	Results []searchResult `json:"results"`
}

// searchResult is one candidate place returned by the forward geocoding API.
// Most fields are optional in practice; normalization fills the gaps.
type searchResult struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Admin1    string  `json:"admin1"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
}

// reverseResponse is the wire shape of the reverse geocoding API (jsonv2)
type reverseResponse struct {
	Address reverseAddress `json:"address"`
}

// reverseAddress carries the locality fields the reverse provider may or may
// not include. The first non-empty of City/Town/Village/County names the place.
type reverseAddress struct {
	City    string `json:"city"`
	Town    string `json:"town"`
	Village string `json:"village"`
	County  string `json:"county"`
	State   string `json:"state"`
	Country string `json:"country"`
}
